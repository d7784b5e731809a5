// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to synthesise deterministic clips without a
// live backend. Unless a scripted clip is configured for the exact text,
// Synthesize returns a clip whose PCM is the UTF-8 bytes of the text, so
// tests can trace which input produced which audio.
//
// Example:
//
//	p := &mock.Provider{Delays: map[string]time.Duration{"slow segment.": 50 * time.Millisecond}}
//	clip, err := p.Synthesize(ctx, "slow segment.")
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/alvinbot/alvin/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Clips maps exact input text to the clip to return. Inputs not in
	// the map get a derived clip (PCM = text bytes, 24 kHz mono).
	Clips map[string]*tts.Clip

	// SynthesizeErr, if non-nil, is returned by every Synthesize call.
	SynthesizeErr error

	// Delay is slept before returning, simulating synthesis latency.
	Delay time.Duration

	// Delays overrides Delay per exact input text.
	Delays map[string]time.Duration

	// --- Call records (read after test) ---

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call, waits out any configured delay and returns
// the scripted or derived clip.
func (p *Provider) Synthesize(ctx context.Context, text string) (*tts.Clip, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text})
	delay := p.Delay
	if d, ok := p.Delays[text]; ok {
		delay = d
	}
	clip := p.Clips[text]
	err := p.SynthesizeErr
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if clip != nil {
		return clip, nil
	}
	return &tts.Clip{PCM: []byte(text), SampleRate: 24000, Channels: 1}, nil
}

// SynthesizeCallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Texts returns the recorded inputs in call order. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
