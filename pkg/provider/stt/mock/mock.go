// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed controlled transcription results
// without a live speech-to-text backend and to inspect which utterances
// were delivered. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Results: []*stt.Result{{Text: "hey alvin", Confidence: 0.92}},
//	}
//	res, err := p.Transcribe(ctx, pcm)
package mock

import (
	"context"
	"sync"

	"github.com/alvinbot/alvin/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// PCM is a copy of the audio bytes passed to Transcribe.
	PCM []byte
}

// Provider is a mock implementation of stt.Provider.
// Each Transcribe call consumes the next entry from Results; once the
// queue is exhausted, further calls return nil, nil (no speech).
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Results is the queue of results returned by successive Transcribe
	// calls, consumed front to back. A nil entry models an utterance
	// with no recognisable speech.
	Results []*stt.Result

	// TranscribeErr, if non-nil, is returned by every Transcribe call
	// instead of consuming from Results.
	TranscribeErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records (read after test) ---

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Transcribe records the call and returns the next queued result.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (*stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, PCM: cp})
	if p.TranscribeErr != nil {
		return nil, p.TranscribeErr
	}
	if len(p.Results) == 0 {
		return nil, nil
	}
	res := p.Results[0]
	p.Results = p.Results[1:]
	return res, nil
}

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) TranscribeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Close records the call and returns CloseErr.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return p.CloseErr
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.CloseCallCount = 0
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
