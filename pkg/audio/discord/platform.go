// Package discord provides an [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It bridges
// Discord's Opus voice transport to the PCM seam the rest of the bot works
// with: inbound packets are decoded per SSRC and pushed to the registered
// packet callback, outbound clips are chunked into 20 ms frames, encoded
// and paced out through discordgo's sender.
//
// The platform requires an active *discordgo.Session (owned by the bot
// layer) and a guild ID.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/alvinbot/alvin/pkg/audio"
)

var _ audio.Platform = (*Platform)(nil)

// Platform joins Discord voice channels on behalf of a single guild and
// hands back [audio.Connection] values for the rest of the stack.
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session
	guildID string
}

// New builds a Platform on top of an established session.
func New(session *discordgo.Session, guildID string) *Platform {
	return &Platform{session: session, guildID: guildID}
}

// Connect joins the voice channel identified by channelID and returns an
// active [audio.Connection]. ctx governs the connection-setup phase only;
// the Connection lives until [audio.Connection.Disconnect].
func (p *Platform) Connect(ctx context.Context, channelID string) (audio.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discord: connect: %w", err)
	}

	// mute=false (we send audio), deaf=false (we receive audio).
	vc, err := p.session.ChannelVoiceJoin(p.guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	conn, err := newConnection(vc)
	if err != nil {
		_ = vc.Disconnect()
		return nil, fmt.Errorf("discord: voice session setup: %w", err)
	}
	return conn, nil
}
