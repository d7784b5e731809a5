package resilience

import (
	"context"

	"github.com/alvinbot/alvin/pkg/provider/llm"
	"github.com/alvinbot/alvin/pkg/types"
)

// LLMFallback implements [llm.Provider] across a chain of model backends.
// When the primary errors or its circuit breaker is open, the same
// conversation snapshot is replayed against the next backend, so a
// fallback model answers from the context the primary would have seen.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback wraps primary as the preferred model backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another backend to the failover order.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// Generate asks the first healthy backend for a reply.
func (f *LLMFallback) Generate(ctx context.Context, messages []types.Message) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (string, error) {
		return p.Generate(ctx, messages)
	})
}
