package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/alvinbot/alvin/internal/observe"
	"github.com/alvinbot/alvin/pkg/types"
)

// chunkQueueSize bounds the router's output queue. The transport push path
// must never stall, so a full queue drops the chunk instead of blocking.
const chunkQueueSize = 32

// Router demultiplexes inbound transport packets into per-speaker buffering
// sinks and emits flushed audio as [types.AudioChunk] values on Chunks.
//
// HandlePacket is safe for concurrent use and never blocks. Each speaker
// gets its own sink, created lazily on first packet, so distinct speakers
// never contend on one buffer.
type Router struct {
	codec          Codec
	policy         FlushPolicy
	maxPacketBytes int
	metrics        *observe.Metrics

	out chan types.AudioChunk

	mu     sync.Mutex
	sinks  map[string]Sink
	closed bool
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithMaxPacketBytes sets the largest accepted payload size. Larger packets
// are treated as transport control traffic and ignored. Defaults to one
// frame.
func WithMaxPacketBytes(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.maxPacketBytes = n
		}
	}
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// NewRouter returns a Router that buffers packets decoded by codec
// according to policy.
func NewRouter(codec Codec, policy FlushPolicy, opts ...RouterOption) *Router {
	r := &Router{
		codec:          codec,
		policy:         policy,
		maxPacketBytes: codec.FrameBytes(),
		metrics:        observe.DefaultMetrics(),
		out:            make(chan types.AudioChunk, chunkQueueSize),
		sinks:          make(map[string]Sink),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Chunks returns the queue of flushed audio chunks. The channel is closed
// by [Router.Close] after all sinks have quiesced.
func (r *Router) Chunks() <-chan types.AudioChunk { return r.out }

// HandlePacket routes one raw transport payload for a speaker. Oversized
// payloads are ignored, malformed ones dropped with a warning; neither
// reaches a buffer. Never blocks.
func (r *Router) HandlePacket(speakerID string, pkt []byte) {
	if len(pkt) > r.maxPacketBytes {
		// Control or silence traffic, not audio.
		r.metrics.FramesDropped.Add(context.Background(), 1, metric.WithAttributes(observe.Attr("reason", "oversized")))
		return
	}

	frame, err := r.codec.Decode(pkt)
	if err != nil {
		if errors.Is(err, ErrMalformedFrame) {
			slog.Warn("dropping malformed frame", "speaker", speakerID, "bytes", len(pkt), "err", err)
			r.metrics.FramesDropped.Add(context.Background(), 1, metric.WithAttributes(observe.Attr("reason", "malformed")))
			return
		}
		slog.Warn("frame decode failed", "speaker", speakerID, "err", err)
		return
	}

	sink := r.sink(speakerID)
	if sink == nil {
		return // router closed
	}
	sink.Write(frame)
}

// sink returns the speaker's sink, creating it on first use.
func (r *Router) sink(speakerID string) Sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	s, ok := r.sinks[speakerID]
	if !ok {
		s = r.policy.NewSink(func(pcm []byte, frames int) {
			r.emit(speakerID, pcm, frames)
		})
		r.sinks[speakerID] = s
		slog.Debug("created speaker buffer", "speaker", speakerID, "policy", r.policy.Name())
	}
	return s
}

// emit enqueues a flushed chunk without blocking. Runs with the speaker's
// sink locked, so it completes before Close can quiesce that sink.
func (r *Router) emit(speakerID string, pcm []byte, frames int) {
	chunk := types.AudioChunk{SpeakerID: speakerID, PCM: pcm, Frames: frames}
	select {
	case r.out <- chunk:
		r.metrics.ChunksFlushed.Add(context.Background(), 1, metric.WithAttributes(observe.Attr("policy", string(r.policy.Name()))))
		slog.Debug("flushed audio chunk", "speaker", speakerID, "frames", frames, "bytes", len(pcm))
	default:
		r.metrics.ChunksDropped.Add(context.Background(), 1)
		slog.Warn("chunk queue full, dropping flush", "speaker", speakerID, "frames", frames)
	}
}

// Close stops all speaker sinks and closes the chunk queue. Buffered but
// unflushed audio is discarded; no emits happen after Close returns. Safe
// to call more than once.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sinks := r.sinks
	r.sinks = nil
	r.mu.Unlock()

	// Closing a sink takes its internal lock, which waits out any write or
	// timer fire already in flight. After this loop no sink can emit.
	for _, s := range sinks {
		s.Close()
	}
	close(r.out)
}
