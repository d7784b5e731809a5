// Package mock provides in-memory implementations of [audio.Platform] and
// [audio.Connection] for unit tests.
//
// The mocks record every call so tests can assert on call counts and
// arguments, and expose exported fields controlling return values. Inbound
// audio is simulated with [Connection.InjectPacket].
//
// Typical usage:
//
//	conn := &mock.Connection{PlayingPollsPerClip: 2}
//	platform := &mock.Platform{ConnectResult: conn}
//	got, err := platform.Connect(ctx, "channel-42")
//	conn.InjectPacket("speaker-1", pcmFrame)
package mock

import (
	"context"
	"sync"

	"github.com/alvinbot/alvin/pkg/audio"
)

// ─── Connection ──────────────────────────────────────────────────────────────

var _ audio.Connection = (*Connection)(nil)

// Connection is a mock implementation of [audio.Connection].
// Set the exported fields before use; inspect the recorded calls after.
type Connection struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// PlayError, if non-nil, is returned by every Play call.
	PlayError error

	// PlayingPollsPerClip controls how many IsPlaying calls report true
	// after each successful Play. Zero means playback finishes instantly.
	PlayingPollsPerClip int

	// Format is returned by PlaybackFormat. A zero value defaults to
	// 48 kHz stereo.
	Format audio.Format

	// DisconnectError is returned by the first Disconnect call.
	DisconnectError error

	// --- Call records ---

	// PlayCalls holds a copy of the PCM passed to each successful Play,
	// in order.
	PlayCalls [][]byte

	// CallCountIsPlaying records how many times IsPlaying was called.
	CallCountIsPlaying int

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	onPacket     func(speakerID string, pcm []byte)
	playingPolls int
	disconnected bool
}

// OnPacket stores cb for later invocation through [Connection.InjectPacket].
func (c *Connection) OnPacket(cb func(speakerID string, pcm []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPacket = cb
}

// InjectPacket invokes the registered packet callback as the platform
// would. It is a no-op when no callback is registered.
func (c *Connection) InjectPacket(speakerID string, pcm []byte) {
	c.mu.Lock()
	cb := c.onPacket
	c.mu.Unlock()
	if cb != nil {
		cb(speakerID, pcm)
	}
}

// Play records the call and, if PlayError is nil, arms IsPlaying for
// PlayingPollsPerClip polls.
func (c *Connection) Play(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PlayError != nil {
		return c.PlayError
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	c.PlayCalls = append(c.PlayCalls, cp)
	c.playingPolls += c.PlayingPollsPerClip
	return nil
}

// IsPlaying reports true for the armed number of polls, then false.
func (c *Connection) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountIsPlaying++
	if c.playingPolls > 0 {
		c.playingPolls--
		return true
	}
	return false
}

// PlaybackFormat returns Format, defaulting to 48 kHz stereo.
func (c *Connection) PlaybackFormat() audio.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Format == (audio.Format{}) {
		return audio.Format{SampleRate: 48000, Channels: 2}
	}
	return c.Format
}

// Disconnect records the call. Only the first call returns
// DisconnectError; later calls return nil.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	if c.disconnected {
		return nil
	}
	c.disconnected = true
	return c.DisconnectError
}

// Played returns a snapshot of all PCM clips passed to Play.
func (c *Connection) Played() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.PlayCalls))
	copy(out, c.PlayCalls)
	return out
}

// ─── Platform ────────────────────────────────────────────────────────────────

var _ audio.Platform = (*Platform)(nil)

// ConnectCall records a single invocation of Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// ChannelID is the channel identifier passed to Connect.
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is returned by Connect when ConnectError is nil.
	ConnectResult audio.Connection

	// ConnectError, if non-nil, is returned by Connect.
	ConnectError error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns the configured result.
func (p *Platform) Connect(ctx context.Context, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, ChannelID: channelID})
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	return p.ConnectResult, nil
}
