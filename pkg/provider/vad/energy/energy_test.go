package energy

import (
	"errors"
	"math"
	"testing"

	"github.com/alvinbot/alvin/pkg/provider/vad"
)

// constFrame builds a frame with every sample set to v. The probability of
// such a frame is |v|/32768.
func constFrame(n int, v int16) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = v
	}
	return f
}

// testConfig keeps the threshold arithmetic round: amplitude 16384 scores
// exactly 0.5 and amplitude 8192 exactly 0.25.
func testConfig() vad.Config {
	return vad.Config{SpeechThreshold: 0.5, SilenceThreshold: 0.25, HangoverFrames: 2}
}

func newTestSession(t *testing.T, cfg vad.Config) vad.Session {
	t.Helper()
	s, err := NewEngine().NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

// process classifies one frame, failing the test on error.
func process(t *testing.T, s vad.Session, frame []int16) vad.Event {
	t.Helper()
	ev, err := s.Process(frame)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return ev
}

// ---- Session construction ----

func TestNewSession_ZeroConfigUsesDefaults(t *testing.T) {
	s := newTestSession(t, vad.Config{})
	cfg := s.(*session).cfg
	if cfg.SpeechThreshold != DefaultSpeechThreshold {
		t.Errorf("speech threshold = %v, want %v", cfg.SpeechThreshold, DefaultSpeechThreshold)
	}
	if cfg.SilenceThreshold != DefaultSilenceThreshold {
		t.Errorf("silence threshold = %v, want %v", cfg.SilenceThreshold, DefaultSilenceThreshold)
	}
	if cfg.HangoverFrames != DefaultHangoverFrames {
		t.Errorf("hangover frames = %d, want %d", cfg.HangoverFrames, DefaultHangoverFrames)
	}
}

func TestNewSession_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  vad.Config
	}{
		{"speech threshold above one", vad.Config{SpeechThreshold: 1.5}},
		{"negative speech threshold", vad.Config{SpeechThreshold: -0.2}},
		{"silence above speech", vad.Config{SpeechThreshold: 0.3, SilenceThreshold: 0.5}},
		{"negative silence threshold", vad.Config{SpeechThreshold: 0.3, SilenceThreshold: -0.1}},
		{"negative hangover", vad.Config{SpeechThreshold: 0.5, SilenceThreshold: 0.25, HangoverFrames: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine().NewSession(tt.cfg); err == nil {
				t.Errorf("expected error for config %+v", tt.cfg)
			}
		})
	}
}

// ---- State machine ----

func TestProcess_SilenceStaysSilent(t *testing.T) {
	s := newTestSession(t, testConfig())
	for range 5 {
		ev := process(t, s, constFrame(8, 100))
		if ev.Type != vad.Silence {
			t.Fatalf("event = %v, want silence", ev.Type)
		}
	}
}

func TestProcess_SpeechStartsAtThreshold(t *testing.T) {
	s := newTestSession(t, testConfig())
	// Amplitude 16384 scores exactly the speech threshold of 0.5.
	ev := process(t, s, constFrame(8, 16384))
	if ev.Type != vad.SpeechStart {
		t.Fatalf("event = %v, want speech_start", ev.Type)
	}
	if ev.Probability != 0.5 {
		t.Errorf("probability = %v, want 0.5", ev.Probability)
	}
}

func TestProcess_SegmentLifecycle(t *testing.T) {
	s := newTestSession(t, testConfig())

	steps := []struct {
		amplitude int16
		want      vad.EventType
	}{
		{100, vad.Silence},
		{24576, vad.SpeechStart},
		{24576, vad.SpeechContinue},
		{0, vad.SpeechContinue}, // hangover frame 1
		{0, vad.SpeechContinue}, // hangover frame 2
		{0, vad.SpeechEnd},      // hangover exhausted
		{0, vad.Silence},
	}
	for i, st := range steps {
		ev := process(t, s, constFrame(8, st.amplitude))
		if ev.Type != st.want {
			t.Fatalf("step %d: event = %v, want %v", i, ev.Type, st.want)
		}
	}
}

func TestProcess_HysteresisHoldsSegment(t *testing.T) {
	s := newTestSession(t, testConfig())
	process(t, s, constFrame(8, 24576))
	// Amplitude 12288 scores 0.375: below the speech threshold but above
	// the silence threshold, so the segment continues with no hangover
	// spent.
	for range 10 {
		ev := process(t, s, constFrame(8, 12288))
		if ev.Type != vad.SpeechContinue {
			t.Fatalf("event = %v, want speech_continue", ev.Type)
		}
	}
}

func TestProcess_ShortPauseDoesNotEndSegment(t *testing.T) {
	s := newTestSession(t, testConfig())
	process(t, s, constFrame(8, 24576))
	// Two silent frames fit inside the hangover, then speech resumes; the
	// pause must not have ended the segment.
	process(t, s, constFrame(8, 0))
	process(t, s, constFrame(8, 0))
	ev := process(t, s, constFrame(8, 24576))
	if ev.Type != vad.SpeechContinue {
		t.Fatalf("event = %v, want speech_continue after a short pause", ev.Type)
	}
	// The resumed speech must have refilled the hangover budget.
	process(t, s, constFrame(8, 0))
	process(t, s, constFrame(8, 0))
	if ev := process(t, s, constFrame(8, 0)); ev.Type != vad.SpeechEnd {
		t.Fatalf("event = %v, want speech_end once the budget is spent again", ev.Type)
	}
}

func TestProcess_AtSilenceThresholdCountsAsSilent(t *testing.T) {
	s := newTestSession(t, testConfig())
	process(t, s, constFrame(8, 24576))
	// Amplitude 8192 scores exactly the silence threshold of 0.25; it must
	// spend hangover budget.
	process(t, s, constFrame(8, 8192))
	process(t, s, constFrame(8, 8192))
	if ev := process(t, s, constFrame(8, 8192)); ev.Type != vad.SpeechEnd {
		t.Fatalf("event = %v, want speech_end", ev.Type)
	}
}

func TestReset_ClearsSegmentState(t *testing.T) {
	s := newTestSession(t, testConfig())
	process(t, s, constFrame(8, 24576))
	s.Reset()
	ev := process(t, s, constFrame(8, 24576))
	if ev.Type != vad.SpeechStart {
		t.Fatalf("event = %v, want a fresh speech_start after reset", ev.Type)
	}
}

func TestProcess_AfterClose(t *testing.T) {
	s := newTestSession(t, testConfig())
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Process(constFrame(8, 24576)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Process after Close = %v, want ErrSessionClosed", err)
	}
}

// ---- Probability ----

func TestProbability(t *testing.T) {
	tests := []struct {
		name  string
		frame []int16
		want  float64
	}{
		{"empty", nil, 0},
		{"digital silence", constFrame(16, 0), 0},
		{"half scale", constFrame(16, 16384), 0.5},
		{"negative amplitudes count", constFrame(16, -16384), 0.5},
		{"mixed", []int16{8192, -8192, 24576, -24576}, 0.5},
		{"full scale minimum", constFrame(16, -32768), 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := probability(tt.frame); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("probability = %v, want %v", got, tt.want)
			}
		})
	}
}
