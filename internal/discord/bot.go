// Package discord provides the Discord surface for Alvin. It owns the
// discordgo.Session lifecycle, routes slash command and button
// interactions to registered handlers, answers text-channel mentions,
// and renders the status embed.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/alvinbot/alvin/pkg/audio"
	discordaudio "github.com/alvinbot/alvin/pkg/audio/discord"
)

// Config holds the Discord connection settings. main.go builds it from
// the discord section of the application config.
type Config struct {
	// Token is the Discord bot token.
	Token string

	// GuildID is the target guild. Alvin serves a single guild.
	GuildID string

	// OperatorRoleID restricts the session control commands to holders
	// of the role. Empty means every member may control the assistant.
	OperatorRoleID string
}

// botIntents lists the gateway events the bot subscribes to.
// MessageContent is a privileged intent; it must also be enabled on the
// bot's application page or mention replies arrive empty.
const botIntents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentMessageContent

// Bot owns the Discord gateway connection and routes interactions to
// registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	platform  *discordaudio.Platform
	router    *CommandRouter
	perms     *PermissionChecker
	guildID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New creates a Bot, opens the gateway connection and hooks up the
// interaction dispatcher. Slash commands are pushed to Discord later,
// by Run, so callers can register handlers in between.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = botIntents

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	b := &Bot{
		session:  session,
		platform: discordaudio.New(session, cfg.GuildID),
		router:   NewCommandRouter(),
		perms:    NewPermissionChecker(cfg.OperatorRoleID),
		guildID:  cfg.GuildID,
	}
	session.AddHandler(b.dispatchInteraction)
	return b, nil
}

func (b *Bot) dispatchInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.router.Handle(s, i)
}

// Platform returns the audio.Platform for voice channel connections.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// GuildID returns the target guild ID.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Session returns the underlying discordgo session. Used by subsystems
// that need direct Discord API access (e.g., the chat responder).
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// Ready reports whether the gateway handshake has completed. The /readyz
// probe uses this to surface the gateway state.
func (b *Bot) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session.DataReady
}

// Run pushes the router's slash commands to the Discord API and blocks
// until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.syncCommands(); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// syncCommands bulk-overwrites the guild's slash commands with the
// router's current set and remembers what was registered so Close can
// remove it again.
func (b *Bot) syncCommands() error {
	cmds := b.router.ApplicationCommands()
	if len(cmds) == 0 {
		return nil
	}

	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
	if err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}

	b.mu.Lock()
	b.commands = registered
	b.mu.Unlock()
	slog.Info("discord commands registered", "count", len(registered))
	return nil
}

// Close deletes the registered slash commands and closes the gateway
// session. Safe to call more than once.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session == nil {
			return
		}

		appID := b.session.State.User.ID
		for _, cmd := range b.commands {
			if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
				slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
			}
		}

		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}
