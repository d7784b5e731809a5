package discord

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/alvinbot/alvin/pkg/audio"
)

var _ audio.Connection = (*Connection)(nil)

// sendQueueFrames bounds the outbound frame queue. At 20 ms per frame this
// holds about five seconds of audio; Play blocks once the queue is full.
const sendQueueFrames = 256

// ErrDisconnected is returned by Play after the connection is torn down.
var ErrDisconnected = errors.New("discord: connection closed")

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. Inbound Opus packets are demuxed by SSRC,
// decoded to PCM and pushed to the registered packet callback with the
// speaker's user ID. Outbound PCM clips are chunked into Opus frames and
// handed to discordgo's paced sender.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc  *discordgo.VoiceConnection
	enc *opusEncoder

	mu       sync.RWMutex
	onPacket func(speakerID string, pcm []byte)
	ssrcUser map[uint32]string

	sendCh  chan []byte
	pending atomic.Int64

	done      chan struct{}
	closeOnce sync.Once

	// disconnectVC tears down the voice connection during Disconnect.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice
// channel and starts its receive and send loops.
func newConnection(vc *discordgo.VoiceConnection) (*Connection, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}

	c := &Connection{
		vc:           vc,
		enc:          enc,
		ssrcUser:     make(map[uint32]string),
		sendCh:       make(chan []byte, sendQueueFrames),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	// Speaking updates carry the SSRC-to-user mapping; without them
	// speakers are identified by their raw SSRC.
	vc.AddHandler(c.handleSpeakingUpdate)

	go c.recvLoop()
	go c.sendLoop()

	return c, nil
}

// OnPacket registers the inbound audio callback. The callback runs on the
// receive goroutine and must not block.
func (c *Connection) OnPacket(cb func(speakerID string, pcm []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPacket = cb
}

// Play chunks pcm into 20 ms Opus frames and queues them for sending. The
// final partial frame, if any, is zero-padded to full length. Play blocks
// while the send queue is full and returns [ErrDisconnected] if the
// connection is torn down before the clip is fully queued.
func (c *Connection) Play(pcm []byte) error {
	select {
	case <-c.done:
		return ErrDisconnected
	default:
	}

	for off := 0; off < len(pcm); off += opusFrameBytes {
		end := off + opusFrameBytes
		frame := pcm[off:min(end, len(pcm))]
		if len(frame) < opusFrameBytes {
			padded := make([]byte, opusFrameBytes)
			copy(padded, frame)
			frame = padded
		}

		packet, err := c.enc.encode(frame)
		if err != nil {
			slog.Warn("discord: opus encode error, skipping frame", "err", err)
			continue
		}

		c.pending.Add(1)
		select {
		case c.sendCh <- packet:
		case <-c.done:
			c.pending.Add(-1)
			return ErrDisconnected
		}
	}
	return nil
}

// IsPlaying reports whether queued frames are still being sent. Because
// discordgo paces transmission at one frame per 20 ms, this tracks audible
// playback closely.
func (c *Connection) IsPlaying() bool {
	return c.pending.Load() > 0
}

// PlaybackFormat returns Discord's fixed 48 kHz stereo playback format.
func (c *Connection) PlaybackFormat() audio.Format {
	return audio.Format{SampleRate: opusSampleRate, Channels: opusChannels}
}

// Disconnect stops both loops and tears down the voice connection. Pending
// playback is dropped. Safe to call more than once.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.pending.Store(0)
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// recvLoop reads Opus packets from Discord, decodes them per SSRC and
// pushes PCM to the registered callback.
func (c *Connection) recvLoop() {
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: create opus decoder", "ssrc", pkt.SSRC, "err", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "err", err)
				continue
			}

			c.mu.RLock()
			cb := c.onPacket
			speaker, known := c.ssrcUser[pkt.SSRC]
			c.mu.RUnlock()

			if !known {
				speaker = strconv.FormatUint(uint64(pkt.SSRC), 10)
			}
			if cb != nil {
				cb(speaker, pcm)
			}
		}
	}
}

// sendLoop hands encoded frames to discordgo's paced sender, toggling the
// speaking indicator around bursts.
func (c *Connection) sendLoop() {
	speaking := false
	for {
		select {
		case <-c.done:
			if speaking {
				c.setSpeaking(false)
			}
			return
		case packet := <-c.sendCh:
			if !speaking {
				c.setSpeaking(true)
				speaking = true
			}

			select {
			case c.vc.OpusSend <- packet:
			case <-c.done:
				c.pending.Add(-1)
				if speaking {
					c.setSpeaking(false)
				}
				return
			}

			if c.pending.Add(-1) == 0 {
				c.setSpeaking(false)
				speaking = false
			}
		}
	}
}

// handleSpeakingUpdate records the SSRC-to-user mapping Discord announces
// when a member starts or stops speaking.
func (c *Connection) handleSpeakingUpdate(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	if su == nil || su.UserID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ssrcUser[uint32(su.SSRC)] = su.UserID
}

// setSpeaking sends the speaking notification, logging failures.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "err", err)
	}
}
