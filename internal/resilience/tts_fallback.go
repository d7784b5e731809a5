package resilience

import (
	"context"

	"github.com/alvinbot/alvin/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] across a chain of synthesis
// backends. When the primary errors or its circuit breaker is open, the
// same segment is synthesised by the next backend. Clips carry their own
// sample rate and channel count, so backends with different native
// formats can share a chain.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback wraps primary as the preferred synthesis backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another backend to the failover order.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *TTSFallback) Names() []string { return f.group.Names() }

// Synthesize renders text through the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (*tts.Clip, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (*tts.Clip, error) {
		return p.Synthesize(ctx, text)
	})
}
