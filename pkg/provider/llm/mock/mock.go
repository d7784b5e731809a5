// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to feed controlled replies without a live
// model backend and to inspect the conversation snapshots the caller sent.
// All fields are safe to set before calling any method; mutating them
// during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{Replies: []string{"Hello! True"}}
//	reply, err := p.Generate(ctx, msgs)
package mock

import (
	"context"
	"sync"

	"github.com/alvinbot/alvin/pkg/provider/llm"
	"github.com/alvinbot/alvin/pkg/types"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Messages is a copy of the conversation passed to Generate.
	Messages []types.Message
}

// Provider is a mock implementation of llm.Provider.
// Each Generate call consumes the next entry from Replies; once the queue
// is exhausted, further calls return Reply (empty by default).
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Replies is a queue of replies returned by successive Generate
	// calls, consumed front to back.
	Replies []string

	// Reply is returned once Replies is exhausted.
	Reply string

	// GenerateErr, if non-nil, is returned by every Generate call instead
	// of consuming from Replies.
	GenerateErr error

	// --- Call records (read after test) ---

	// GenerateCalls records every invocation of Generate in order.
	GenerateCalls []GenerateCall
}

// Generate records the call and returns the next queued reply.
func (p *Provider) Generate(ctx context.Context, messages []types.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := make([]types.Message, len(messages))
	copy(msgs, messages)
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Ctx: ctx, Messages: msgs})
	if p.GenerateErr != nil {
		return "", p.GenerateErr
	}
	if len(p.Replies) > 0 {
		reply := p.Replies[0]
		p.Replies = p.Replies[1:]
		return reply, nil
	}
	return p.Reply, nil
}

// GenerateCallCount returns the number of Generate calls. Thread-safe.
func (p *Provider) GenerateCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.GenerateCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
