package convo

import (
	"sync"

	"github.com/alvinbot/alvin/pkg/types"
)

// Context holds the message history of the current conversation turn in
// provider-neutral form. The conversation stage is the only writer; other
// goroutines may take snapshots for status reporting, so all methods lock.
//
// The system prompt is not stored in the history itself. It is prepended
// lazily by [Context.Snapshot], which keeps Reset trivially correct: a
// reset context and a fresh context are indistinguishable.
type Context struct {
	systemPrompt string

	mu      sync.Mutex
	history []types.Message
}

// NewContext returns an empty conversation context. systemPrompt may be
// empty, in which case snapshots contain user and assistant messages only.
func NewContext(systemPrompt string) *Context {
	return &Context{systemPrompt: systemPrompt}
}

// AppendUser records one user utterance.
func (c *Context) AppendUser(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, types.UserMessage(text))
}

// AppendAssistant records one assistant response.
func (c *Context) AppendAssistant(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, types.AssistantMessage(text))
}

// Snapshot returns the messages to send to the language model: the system
// prompt, if any, followed by a copy of the history. Mutating the returned
// slice does not affect the context.
func (c *Context) Snapshot() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]types.Message, 0, len(c.history)+1)
	if c.systemPrompt != "" {
		msgs = append(msgs, types.SystemMessage(c.systemPrompt))
	}
	return append(msgs, c.history...)
}

// Len returns the number of recorded messages, excluding the system prompt.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Reset discards the history. The system prompt survives resets.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}
