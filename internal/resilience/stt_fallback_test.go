package resilience

import (
	"errors"
	"testing"

	"github.com/alvinbot/alvin/pkg/provider/stt"
	sttmock "github.com/alvinbot/alvin/pkg/provider/stt/mock"
)

// sttChain wires whisper as the primary transcriber with deepgram behind it.
func sttChain(whisper, deepgram *sttmock.Provider) *STTFallback {
	fb := NewSTTFallback(whisper, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("deepgram", deepgram)
	return fb
}

func TestSTTFallback_Transcribe_UsesPrimary(t *testing.T) {
	whisper := &sttmock.Provider{
		Results: []*stt.Result{{Text: "turn on the lights", Confidence: 0.9}},
	}
	deepgram := &sttmock.Provider{
		Results: []*stt.Result{{Text: "unused", Confidence: 0.9}},
	}
	fb := sttChain(whisper, deepgram)

	res, err := fb.Transcribe(t.Context(), []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res == nil || res.Text != "turn on the lights" {
		t.Fatalf("result = %+v, want the primary transcript", res)
	}
	if whisper.TranscribeCallCount() != 1 || deepgram.TranscribeCallCount() != 0 {
		t.Fatalf("calls = %d/%d, want 1/0",
			whisper.TranscribeCallCount(), deepgram.TranscribeCallCount())
	}
}

func TestSTTFallback_Transcribe_FailoverSeesSameUtterance(t *testing.T) {
	whisper := &sttmock.Provider{TranscribeErr: errors.New("model crashed")}
	deepgram := &sttmock.Provider{
		Results: []*stt.Result{{Text: "what is the weather", Confidence: 0.8}},
	}
	fb := sttChain(whisper, deepgram)

	pcm := []byte{1, 2, 3, 4}
	res, err := fb.Transcribe(t.Context(), pcm)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res == nil || res.Text != "what is the weather" {
		t.Fatalf("result = %+v, want the fallback transcript", res)
	}
	if deepgram.TranscribeCallCount() != 1 {
		t.Fatalf("fallback called %d times, want 1", deepgram.TranscribeCallCount())
	}
	if got := deepgram.TranscribeCalls[0].PCM; len(got) != len(pcm) {
		t.Fatalf("fallback received %d bytes, want the original %d", len(got), len(pcm))
	}
}

func TestSTTFallback_Transcribe_AllFail(t *testing.T) {
	fb := sttChain(
		&sttmock.Provider{TranscribeErr: errors.New("model crashed")},
		&sttmock.Provider{TranscribeErr: errors.New("api unreachable")},
	)

	if _, err := fb.Transcribe(t.Context(), []byte{1, 2}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSTTFallback_Transcribe_NoSpeechIsFinal(t *testing.T) {
	// An exhausted Results queue makes the mock report no speech. That is
	// a valid answer, not an outage, so the chain must stop there.
	whisper := &sttmock.Provider{}
	deepgram := &sttmock.Provider{
		Results: []*stt.Result{{Text: "should never be used"}},
	}
	fb := sttChain(whisper, deepgram)

	res, err := fb.Transcribe(t.Context(), []byte{1, 2})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil for no speech", res)
	}
	if deepgram.TranscribeCallCount() != 0 {
		t.Fatal("no-speech from the primary must not fail over")
	}
}

func TestSTTFallback_Close_ClosesAllBackends(t *testing.T) {
	whisper := &sttmock.Provider{CloseErr: errors.New("close failed")}
	deepgram := &sttmock.Provider{}
	fb := sttChain(whisper, deepgram)

	if err := fb.Close(); err == nil {
		t.Fatal("expected the primary's close error to surface")
	}
	if whisper.CloseCallCount != 1 {
		t.Fatalf("primary closed %d times, want 1", whisper.CloseCallCount)
	}
	if deepgram.CloseCallCount != 1 {
		t.Fatal("a failing primary must not stop the fallback from closing")
	}
}
