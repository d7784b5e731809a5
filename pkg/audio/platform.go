// Package audio defines the voice platform seam and the PCM format helpers
// shared by the capture layer, the providers and the playback path.
//
// The two abstractions are:
//
//   - [Platform] — joins a voice channel and returns a [Connection].
//   - [Connection] — an active session on that channel: inbound audio is
//     pushed per speaker through a registered callback, outbound audio is
//     played as whole clips.
//
// Platform-specific adapters (e.g. audio/discord) implement these
// interfaces. They live under pkg/ because external adapters are expected
// to implement [Platform] and [Connection] too.
package audio

import "context"

// Connection represents an active session on a voice channel.
//
// A Connection is obtained from [Platform.Connect] and stays valid until
// [Connection.Disconnect]. Implementations must be safe for concurrent use.
type Connection interface {
	// OnPacket registers cb to receive inbound audio. cb is invoked once
	// per transport frame with the platform's speaker identifier and the
	// decoded PCM payload in the connection's capture format. Only one
	// callback may be registered; later calls replace it.
	//
	// cb runs on the connection's receive goroutine and must not block.
	OnPacket(cb func(speakerID string, pcm []byte))

	// Play queues pcm for playback to the channel. pcm must be 16-bit
	// little-endian in [Connection.PlaybackFormat]. Play may block while
	// the outbound queue is full; it returns once the clip is fully
	// queued, not once it has been heard.
	Play(pcm []byte) error

	// IsPlaying reports whether previously queued audio is still being
	// sent to the channel.
	IsPlaying() bool

	// PlaybackFormat returns the PCM format Play expects.
	PlaybackFormat() Format

	// Disconnect tears down the connection. Pending playback is dropped.
	// Calling Disconnect more than once is safe; later calls return nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel identified by channelID. ctx governs
	// the connection attempt only; the returned Connection lives until
	// Disconnect is called.
	Connect(ctx context.Context, channelID string) (Connection, error)
}
