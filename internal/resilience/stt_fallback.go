package resilience

import (
	"context"
	"errors"

	"github.com/alvinbot/alvin/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] across a chain of transcription
// backends. When the primary errors or its circuit breaker is open, the
// same utterance is retried against the next backend.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback wraps primary as the preferred transcription backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another backend to the failover order.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *STTFallback) Names() []string { return f.group.Names() }

// Transcribe sends the utterance to the first healthy backend. A nil
// no-speech result from a healthy backend is a final answer and does not
// trigger failover.
func (f *STTFallback) Transcribe(ctx context.Context, pcm []byte) (*stt.Result, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (*stt.Result, error) {
		return p.Transcribe(ctx, pcm)
	})
}

// Close closes every backend in the chain, healthy or not, and joins
// their errors.
func (f *STTFallback) Close() error {
	var errs []error
	for i := range f.group.entries {
		if err := f.group.entries[i].value.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
