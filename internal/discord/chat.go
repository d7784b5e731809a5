package discord

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/alvinbot/alvin/internal/convo"
	"github.com/alvinbot/alvin/pkg/provider/llm"
)

// chatTimeout bounds a single text reply generation.
const chatTimeout = 30 * time.Second

// replySender is the subset of the discordgo session the responder needs
// to deliver a reply. Narrowed for testability.
type replySender interface {
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChatResponder answers text-channel messages that mention the bot.
// Each message gets an independent throwaway conversation (the text
// persona holds no history between messages); voice turns are handled
// by the pipeline and never reach this path.
type ChatResponder struct {
	llm    llm.Provider
	prompt string
}

// NewChatResponder creates a ChatResponder and registers its message
// handler with the bot's session.
func NewChatResponder(bot *Bot, provider llm.Provider, systemPrompt string) *ChatResponder {
	cr := &ChatResponder{
		llm:    provider,
		prompt: systemPrompt,
	}
	bot.Session().AddHandler(cr.handleMessage)
	return cr
}

// handleMessage runs on the gateway event goroutine; the LLM call moves
// to its own goroutine so a slow model cannot stall event dispatch.
func (cr *ChatResponder) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	var botID string
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}
	if !shouldReply(botID, m) {
		return
	}
	go cr.reply(s, m, botID)
}

// reply generates and delivers the answer for one mention.
func (cr *ChatResponder) reply(sender replySender, m *discordgo.MessageCreate, botID string) {
	text := stripMentions(m.Content, botID)
	if text == "" {
		slog.Debug("chat: mention with no content, ignoring", "message_id", m.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
	defer cancel()

	answer, err := cr.respond(ctx, text)
	if err != nil {
		slog.Warn("chat: generate failed", "message_id", m.ID, "err", err)
		return
	}

	if _, err := sender.ChannelMessageSendReply(m.ChannelID, answer, m.Reference()); err != nil {
		slog.Warn("chat: failed to send reply", "channel_id", m.ChannelID, "err", err)
		return
	}
	slog.Debug("chat: replied", "channel_id", m.ChannelID, "message_id", m.ID)
}

// respond runs one stateless exchange through the language model.
func (cr *ChatResponder) respond(ctx context.Context, text string) (string, error) {
	conv := convo.NewContext(cr.prompt)
	conv.AppendUser(text)
	answer, err := cr.llm.Generate(ctx, conv.Snapshot())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// shouldReply reports whether a message warrants a chat reply: it must
// come from a human other than the bot and mention the bot directly.
func shouldReply(botID string, m *discordgo.MessageCreate) bool {
	if botID == "" || m.Author == nil {
		return false
	}
	if m.Author.Bot || m.Author.ID == botID {
		return false
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			return true
		}
	}
	return false
}

// stripMentions removes the bot's own mention tokens from the message
// content. Discord renders mentions as "<@id>" or "<@!id>" (nickname
// form) in the raw content.
func stripMentions(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.TrimSpace(content)
}
