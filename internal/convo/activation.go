package convo

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// defaultPhoneticThreshold is the minimum Jaro-Winkler score required for a
// phonetic activation match. Speech recognition mangles names often enough
// ("Alvin" heard as "Elven") that a moderately permissive default works
// better than the strict thresholds used for exact-entity lookup.
const defaultPhoneticThreshold = 0.80

// Matcher decides whether an utterance addresses the assistant.
type Matcher interface {
	Match(text string) bool
}

// ActivationMatcher decides whether an utterance addresses the assistant.
//
// The base rule is case-insensitive substring containment of the activation
// phrase. With phonetic matching enabled, a second pass compares every
// phrase-sized window of the utterance against the phrase using Double
// Metaphone code overlap ranked by Jaro-Winkler similarity, so "hey elvin"
// still activates a bot called Alvin.
//
// The matcher is read-only after construction and safe for concurrent use.
type ActivationMatcher struct {
	phrase       string
	phraseTokens []string
	phraseCodes  map[string]struct{}

	phonetic          bool
	phoneticThreshold float64
}

// ActivationOption configures an [ActivationMatcher].
type ActivationOption func(*ActivationMatcher)

// WithPhoneticMatching enables the Double Metaphone fallback pass.
func WithPhoneticMatching() ActivationOption {
	return func(m *ActivationMatcher) { m.phonetic = true }
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// match and implies [WithPhoneticMatching]. Default: 0.80.
func WithPhoneticThreshold(threshold float64) ActivationOption {
	return func(m *ActivationMatcher) {
		m.phonetic = true
		m.phoneticThreshold = threshold
	}
}

// NewActivationMatcher returns a matcher for the given activation phrase.
// The phrase is matched case-insensitively; phonetic matching is off unless
// enabled through an option.
func NewActivationMatcher(phrase string, opts ...ActivationOption) *ActivationMatcher {
	m := &ActivationMatcher{
		phrase:            strings.ToLower(strings.TrimSpace(phrase)),
		phoneticThreshold: defaultPhoneticThreshold,
	}
	m.phraseTokens = strings.Fields(m.phrase)
	m.phraseCodes = metaphoneCodes(m.phraseTokens)
	for _, o := range opts {
		o(m)
	}
	return m
}

// Phrase returns the normalised activation phrase.
func (m *ActivationMatcher) Phrase() string { return m.phrase }

// ActivationSet matches when any of its phrase matchers does. Blank
// phrases are skipped at construction; an empty set never matches.
type ActivationSet []*ActivationMatcher

// NewActivationSet returns a set with one matcher per phrase, each
// configured with the same options.
func NewActivationSet(phrases []string, opts ...ActivationOption) ActivationSet {
	set := make(ActivationSet, 0, len(phrases))
	for _, p := range phrases {
		if strings.TrimSpace(p) == "" {
			continue
		}
		set = append(set, NewActivationMatcher(p, opts...))
	}
	return set
}

// Phrases returns the normalised phrases in the set.
func (s ActivationSet) Phrases() []string {
	phrases := make([]string, len(s))
	for i, m := range s {
		phrases[i] = m.Phrase()
	}
	return phrases
}

// Match reports whether text addresses the assistant under any phrase.
func (s ActivationSet) Match(text string) bool {
	for _, m := range s {
		if m.Match(text) {
			return true
		}
	}
	return false
}

// Match reports whether text addresses the assistant.
func (m *ActivationMatcher) Match(text string) bool {
	if m.phrase == "" {
		return false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, m.phrase) {
		return true
	}
	if !m.phonetic {
		return false
	}
	return m.matchPhonetic(lower)
}

// matchPhonetic slides a phrase-sized window over the utterance tokens and
// accepts the first window that shares a Double Metaphone code with the
// phrase and scores at or above the threshold.
func (m *ActivationMatcher) matchPhonetic(lower string) bool {
	tokens := tokenize(lower)
	n := len(m.phraseTokens)
	if n == 0 || len(tokens) < n {
		return false
	}
	for i := 0; i+n <= len(tokens); i++ {
		window := tokens[i : i+n]
		if !codesOverlap(metaphoneCodes(window), m.phraseCodes) {
			continue
		}
		joined := strings.Join(window, " ")
		if matchr.JaroWinkler(joined, m.phrase, false) >= m.phoneticThreshold {
			return true
		}
	}
	return false
}

// tokenize splits on whitespace and strips surrounding punctuation, so
// "Hey, Alvin!" yields the same tokens as "hey alvin".
func tokenize(s string) []string {
	fields := strings.Fields(s)
	tokens := fields[:0]
	for _, f := range fields {
		t := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// metaphoneCodes returns the union of Double Metaphone codes for the
// tokens. Empty codes are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
