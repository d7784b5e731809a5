package discord

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc is the signature for slash command and component handlers.
type HandlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

// boundCommand pairs a slash command definition with its handler.
type boundCommand struct {
	def     *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter dispatches Discord interactions to registered handlers.
// Alvin's command surface is flat: every command is top-level, and
// components (buttons) are matched on their exact custom ID.
type CommandRouter struct {
	mu         sync.RWMutex
	commands   map[string]boundCommand // command name → definition and handler
	components map[string]HandlerFunc  // custom_id → handler
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{
		commands:   make(map[string]boundCommand),
		components: make(map[string]HandlerFunc),
	}
}

// RegisterCommand registers a slash command definition and its handler.
// The definition is keyed by its name; registering the same name twice
// replaces the earlier entry.
func (r *CommandRouter) RegisterCommand(cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name] = boundCommand{def: cmd, handler: handler}
}

// RegisterComponent registers a handler for a message component
// interaction (buttons) by its custom ID.
func (r *CommandRouter) RegisterComponent(customID string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[customID] = handler
}

// ApplicationCommands returns the command definitions for registration
// with the Discord API.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, bc := range r.commands {
		defs = append(defs, bc.def)
	}
	return defs
}

// Handle dispatches one interaction to its registered handler. Unknown
// commands and components get an ephemeral reply so the user is not left
// with a spinner.
func (r *CommandRouter) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var (
		kind, key string
		handler   HandlerFunc
	)
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		kind, key = "command", i.ApplicationCommandData().Name
		r.mu.RLock()
		if bc, ok := r.commands[key]; ok {
			handler = bc.handler
		}
		r.mu.RUnlock()

	case discordgo.InteractionMessageComponent:
		kind, key = "component", i.MessageComponentData().CustomID
		r.mu.RLock()
		handler = r.components[key]
		r.mu.RUnlock()

	default:
		slog.Warn("discord: unhandled interaction type", "type", i.Type)
		return
	}

	if handler == nil {
		slog.Warn("discord: no handler registered", "kind", kind, "key", key)
		RespondEphemeral(s, i, "Unknown "+kind+".")
		return
	}
	handler(s, i)
}
