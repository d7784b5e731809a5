// Package commands implements the Discord slash command surface for
// Alvin: session control (/join, /leave, /listen, /stop) and the
// /status embed with its refresh button.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/alvinbot/alvin/internal/app"
	"github.com/alvinbot/alvin/internal/discord"
)

// commandTimeout bounds voice connect and teardown calls issued from a
// command handler.
const commandTimeout = 30 * time.Second

// SessionCommands holds the dependencies for the session slash commands.
type SessionCommands struct {
	sessions *app.SessionManager
	perms    *discord.PermissionChecker
	bot      *discord.Bot
	stats    *discord.PipelineStats
}

// NewSessionCommands creates a SessionCommands and registers its
// handlers with the bot's router. stats may be nil; the status embed
// then renders without latency data.
func NewSessionCommands(bot *discord.Bot, sessions *app.SessionManager, stats *discord.PipelineStats) *SessionCommands {
	sc := &SessionCommands{
		sessions: sessions,
		perms:    bot.Permissions(),
		bot:      bot,
		stats:    stats,
	}
	sc.Register(bot.Router())
	return sc
}

// Register registers all session commands and the status refresh button
// with the router.
func (sc *SessionCommands) Register(router *discord.CommandRouter) {
	handlers := map[string]discord.HandlerFunc{
		"join":   sc.handleJoin,
		"leave":  sc.handleLeave,
		"listen": sc.handleListen,
		"stop":   sc.handleStop,
		"status": sc.handleStatus,
	}
	for _, def := range sc.Definitions() {
		router.RegisterCommand(def, handlers[def.Name])
	}
	router.RegisterComponent(discord.StatusRefreshID, sc.handleStatusRefresh)
}

// Definitions returns the ApplicationCommand definitions for Discord.
func (sc *SessionCommands) Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "join",
			Description: "Invite the assistant into your current voice channel",
		},
		{
			Name:        "leave",
			Description: "Disconnect the assistant from the voice channel",
		},
		{
			Name:        "listen",
			Description: "Start listening for the activation word",
		},
		{
			Name:        "stop",
			Description: "Stop listening; the assistant stays in the channel",
		},
		{
			Name:        "status",
			Description: "Show the session state and pipeline statistics",
		},
	}
}

// handleJoin handles /join: connect to the caller's voice channel.
func (sc *SessionCommands) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !sc.perms.IsOperator(i) {
		discord.RespondEphemeral(s, i, "You need the operator role to control the assistant.")
		return
	}

	// The caller must be in a voice channel so we know where to join.
	guildID := sc.bot.GuildID()
	userID := interactionUserID(i)
	vs, err := s.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		discord.RespondEphemeral(s, i, "You must be in a voice channel to invite the assistant.")
		return
	}

	if sc.sessions.IsActive() {
		info := sc.sessions.Info()
		discord.RespondEphemeral(s, i, fmt.Sprintf("A session is already active (ID: `%s`).", info.SessionID))
		return
	}

	// Defer the reply since connecting may take a moment.
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := sc.sessions.Start(ctx, vs.ChannelID, userID); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to join: %v", err))
		return
	}

	info := sc.sessions.Info()
	discord.FollowUp(s, i, fmt.Sprintf(
		"Joined <#%s>.\n**Session ID:** `%s`\nUse `/listen` to start the conversation loop.",
		info.ChannelID,
		info.SessionID,
	))
}

// handleLeave handles /leave: stop capture if running and disconnect.
func (sc *SessionCommands) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !sc.perms.IsOperator(i) {
		discord.RespondEphemeral(s, i, "You need the operator role to control the assistant.")
		return
	}

	if !sc.sessions.IsActive() {
		discord.RespondEphemeral(s, i, "The assistant is not in a voice channel.")
		return
	}

	info := sc.sessions.Info()
	duration := time.Since(info.StartedAt).Truncate(time.Second)

	// Teardown drains queued playback, which can outlast the 3 second
	// interaction acknowledgement window.
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := sc.sessions.Stop(ctx); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to leave: %v", err))
		return
	}

	discord.FollowUp(s, i, fmt.Sprintf(
		"Left the voice channel. Session `%s` ran for %s.",
		info.SessionID,
		duration.String(),
	))
}

// handleListen handles /listen: start the capture and conversation loop.
func (sc *SessionCommands) handleListen(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !sc.perms.IsOperator(i) {
		discord.RespondEphemeral(s, i, "You need the operator role to control the assistant.")
		return
	}

	if !sc.sessions.IsActive() {
		discord.RespondEphemeral(s, i, "The assistant is not in a voice channel. Use `/join` first.")
		return
	}
	if sc.sessions.IsListening() {
		discord.RespondEphemeral(s, i, "Already listening.")
		return
	}

	if err := sc.sessions.Listen(context.Background()); err != nil {
		discord.RespondError(s, i, err)
		return
	}

	discord.RespondEphemeral(s, i, "Listening. Say the activation word to start a conversation.")
}

// handleStop handles /stop: stop capture but stay in the channel.
func (sc *SessionCommands) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !sc.perms.IsOperator(i) {
		discord.RespondEphemeral(s, i, "You need the operator role to control the assistant.")
		return
	}

	if !sc.sessions.IsListening() {
		discord.RespondEphemeral(s, i, "Not currently listening.")
		return
	}

	// Stopping waits for in-flight turns to drain.
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := sc.sessions.StopListening(ctx); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to stop listening: %v", err))
		return
	}

	discord.FollowUp(s, i, "Stopped listening. Use `/listen` to resume or `/leave` to disconnect.")
}

// handleStatus handles /status: render the session embed with a refresh
// button. Open to everyone; it only reads state.
func (sc *SessionCommands) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	embed := discord.BuildStatusEmbed(sessionView{sc.sessions}, sc.snapshot())
	discord.RespondEmbed(s, i, embed, discord.StatusComponents()...)
}

// handleStatusRefresh re-renders the status embed in place when the
// refresh button is pressed.
func (sc *SessionCommands) handleStatusRefresh(s *discordgo.Session, i *discordgo.InteractionCreate) {
	embed := discord.BuildStatusEmbed(sessionView{sc.sessions}, sc.snapshot())
	discord.UpdateEmbed(s, i, embed, discord.StatusComponents()...)
}

// snapshot returns the current pipeline statistics, or a zero snapshot
// when no collector is wired.
func (sc *SessionCommands) snapshot() discord.Snapshot {
	if sc.stats == nil {
		return discord.Snapshot{}
	}
	return sc.stats.Snapshot()
}

// sessionView adapts the session manager to the status embed's data
// interface.
type sessionView struct {
	sm *app.SessionManager
}

func (v sessionView) IsActive() bool            { return v.sm.IsActive() }
func (v sessionView) IsListening() bool         { return v.sm.IsListening() }
func (v sessionView) SessionID() string         { return v.sm.Info().SessionID }
func (v sessionView) ChannelID() string         { return v.sm.Info().ChannelID }
func (v sessionView) StartedBy() string         { return v.sm.Info().StartedBy }
func (v sessionView) StartedAt() time.Time      { return v.sm.Info().StartedAt }
func (v sessionView) ConversationState() string { return v.sm.ConversationState() }

// interactionUserID extracts the user ID from an interaction, handling
// both guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
