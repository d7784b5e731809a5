package convo_test

import (
	"testing"

	"github.com/alvinbot/alvin/internal/convo"
)

func TestActivationMatcher_SubstringCaseInsensitive(t *testing.T) {
	t.Parallel()

	m := convo.NewActivationMatcher("Alvin")

	tests := []struct {
		text string
		want bool
	}{
		{"hey Alvin how are you", true},
		{"HEY ALVIN", true},
		{"alvin", true},
		{"so, aLvIn, what do you think", true},
		{"good morning everyone", false},
		{"hey elvin", false}, // phonetic is opt-in
		{"", false},
	}

	for _, tt := range tests {
		if got := m.Match(tt.text); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestActivationMatcher_EmptyPhraseNeverMatches(t *testing.T) {
	t.Parallel()

	m := convo.NewActivationMatcher("")
	if m.Match("anything at all") {
		t.Error("empty activation phrase must never match")
	}
}

func TestActivationMatcher_PhraseNormalised(t *testing.T) {
	t.Parallel()

	m := convo.NewActivationMatcher("  Hey Alvin  ")
	if m.Phrase() != "hey alvin" {
		t.Errorf("Phrase() = %q, want %q", m.Phrase(), "hey alvin")
	}
	if !m.Match("well HEY ALVIN there") {
		t.Error("normalised multi-word phrase must match case-insensitively")
	}
}

func TestActivationMatcher_PhoneticFallback(t *testing.T) {
	t.Parallel()

	m := convo.NewActivationMatcher("alvin", convo.WithPhoneticMatching())

	// "elvin" shares the Double Metaphone code of "alvin" and scores
	// about 0.87 on Jaro-Winkler, above the 0.80 default.
	if !m.Match("hey elvin, you there?") {
		t.Error("close homophone should activate with phonetic matching on")
	}
	// Unrelated words share no code and must not activate.
	if m.Match("hey bob, you there?") {
		t.Error("unrelated word must not activate")
	}
}

func TestActivationMatcher_PhoneticThresholdOption(t *testing.T) {
	t.Parallel()

	// "elven" scores about 0.73 against "alvin": below the default
	// threshold, above a relaxed one.
	strict := convo.NewActivationMatcher("alvin", convo.WithPhoneticMatching())
	if strict.Match("hey elven") {
		t.Error("score below default threshold must not activate")
	}

	relaxed := convo.NewActivationMatcher("alvin", convo.WithPhoneticThreshold(0.70))
	if !relaxed.Match("hey elven") {
		t.Error("relaxed threshold should accept the looser homophone")
	}
}

func TestActivationMatcher_PhoneticMultiWordPhrase(t *testing.T) {
	t.Parallel()

	m := convo.NewActivationMatcher("hey alvin", convo.WithPhoneticMatching())
	if !m.Match("so I said hey elvin and waited") {
		t.Error("phrase-sized window should match mid-utterance")
	}
	if m.Match("elvin") {
		t.Error("utterance shorter than the phrase cannot match phonetically")
	}
}

func TestActivationSet_AnyPhraseMatches(t *testing.T) {
	t.Parallel()

	set := convo.NewActivationSet([]string{"alvin", "assistant", ""})
	if got := len(set); got != 2 {
		t.Fatalf("expected blank phrase skipped, got %d matchers", got)
	}
	if !set.Match("hey Alvin") {
		t.Error("first phrase should match")
	}
	if !set.Match("assistant, ping") {
		t.Error("second phrase should match")
	}
	if set.Match("nobody here") {
		t.Error("unrelated text must not match")
	}
	if got := set.Phrases(); len(got) != 2 || got[0] != "alvin" || got[1] != "assistant" {
		t.Errorf("unexpected phrases %v", got)
	}
}

func TestActivationSet_EmptyNeverMatches(t *testing.T) {
	t.Parallel()

	set := convo.NewActivationSet(nil)
	if set.Match("alvin") {
		t.Error("empty set must not match anything")
	}
}

func TestActivationSet_OptionsApplyToEveryPhrase(t *testing.T) {
	t.Parallel()

	set := convo.NewActivationSet([]string{"alvin", "jarvis"}, convo.WithPhoneticMatching())
	if !set.Match("hey elvin") {
		t.Error("phonetic option should carry into set members")
	}
}
