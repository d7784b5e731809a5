// Package llm defines the language model seam of the assistant.
//
// The assistant drives the model with full conversation snapshots and needs
// exactly one thing back: the reply text. Streaming, tool calling and token
// accounting are deliberately outside this contract; a provider that wants
// to stream internally still returns the assembled reply.
package llm

import (
	"context"

	"github.com/alvinbot/alvin/pkg/types"
)

// Provider generates a reply for a conversation.
//
// messages is the full history in order, system prompt first when present.
// Implementations must respect ctx cancellation and return the reply with
// surrounding whitespace preserved (sentinel stripping happens upstream).
type Provider interface {
	Generate(ctx context.Context, messages []types.Message) (string, error)
}
