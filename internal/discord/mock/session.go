// Package mock provides test doubles for Discord message delivery.
package mock

import "github.com/bwmarrin/discordgo"

// ReplyCall records a single ChannelMessageSendReply invocation.
type ReplyCall struct {
	// ChannelID is the target channel.
	ChannelID string
	// Content is the reply text.
	Content string
	// Reference points at the message being replied to.
	Reference *discordgo.MessageReference
}

// ReplyRecorder records channel replies for test assertions. It stands
// in for the discordgo session on the chat delivery path.
type ReplyRecorder struct {
	// Calls records all ChannelMessageSendReply invocations in order.
	Calls []ReplyCall

	// Err, when non-nil, is returned by every call for error injection.
	Err error
}

// ChannelMessageSendReply records the call and returns a stub message.
func (m *ReplyRecorder) ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.Calls = append(m.Calls, ReplyCall{
		ChannelID: channelID,
		Content:   content,
		Reference: reference,
	})
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-reply"}, nil
}

// LastCall returns the most recently recorded reply, or nil.
func (m *ReplyRecorder) LastCall() *ReplyCall {
	if len(m.Calls) == 0 {
		return nil
	}
	return &m.Calls[len(m.Calls)-1]
}

// Reset clears all recorded calls and the injected error.
func (m *ReplyRecorder) Reset() {
	m.Calls = nil
	m.Err = nil
}
