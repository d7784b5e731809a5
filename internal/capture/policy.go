package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alvinbot/alvin/pkg/provider/vad"
)

// PolicyName identifies a flush policy in configuration.
type PolicyName string

const (
	// PolicyTimeout flushes a speaker's buffer after a stretch of
	// inactivity: every accepted frame restarts a timer, and the timer
	// firing flushes whatever is buffered.
	PolicyTimeout PolicyName = "timeout"

	// PolicyEnergy appends only frames whose energy exceeds a silence
	// threshold and flushes as soon as a silent frame follows speech.
	PolicyEnergy PolicyName = "energy"

	// PolicyVAD buffers the frames a voice activity detection session
	// classifies as speech and flushes each segment when the session
	// reports its end.
	PolicyVAD PolicyName = "vad"
)

// IsValid reports whether the policy name is known.
func (p PolicyName) IsValid() bool {
	return p == PolicyTimeout || p == PolicyEnergy || p == PolicyVAD
}

// FlushPolicy creates per-speaker buffering sinks. The implementations
// share the hard-cap behaviour through [Buffer] and differ only in when
// they flush.
type FlushPolicy interface {
	// Name returns the policy's configuration name.
	Name() PolicyName

	// NewSink returns a sink for one speaker. emit receives every flushed
	// chunk as (pcm, frames) and must not block.
	NewSink(emit func(pcm []byte, frames int)) Sink
}

// Sink consumes decoded frames for a single speaker. Implementations are
// safe for concurrent use; Write after Close is a no-op.
type Sink interface {
	Write(frame []int16)
	Close()
}

// ─── Timeout policy ──────────────────────────────────────────────────────────

// TimeoutPolicy flushes after a configurable inactivity window.
type TimeoutPolicy struct {
	Capacity int           // buffer capacity in frames
	Margin   int           // hard-cap margin in frames
	Timeout  time.Duration // inactivity window
	codec    Codec
}

// NewTimeoutPolicy returns a timeout flush policy for the codec's frame
// format.
func NewTimeoutPolicy(codec Codec, capacityFrames, marginFrames int, timeout time.Duration) *TimeoutPolicy {
	return &TimeoutPolicy{
		Capacity: capacityFrames,
		Margin:   marginFrames,
		Timeout:  timeout,
		codec:    codec,
	}
}

// Name implements FlushPolicy.
func (p *TimeoutPolicy) Name() PolicyName { return PolicyTimeout }

// NewSink implements FlushPolicy.
func (p *TimeoutPolicy) NewSink(emit func(pcm []byte, frames int)) Sink {
	return &timeoutSink{
		buf:     NewBuffer(p.Capacity, p.Margin, p.codec.FrameSamples()),
		timeout: p.Timeout,
		emit:    emit,
	}
}

// timeoutSink buffers every frame and flushes when the inactivity timer
// fires. Each write arms a fresh timer carrying the current generation so a
// stale timer that raced with a write never flushes.
type timeoutSink struct {
	mu      sync.Mutex
	buf     *Buffer
	timeout time.Duration
	emit    func(pcm []byte, frames int)
	timer   *time.Timer
	gen     uint64
	closed  bool
}

func (s *timeoutSink) Write(frame []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if pcm, frames := s.buf.Append(frame); pcm != nil {
		s.emit(pcm, frames)
	}
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.timeout, func() { s.fire(gen) })
}

// fire flushes the buffer if no write or close intervened since the timer
// was armed.
func (s *timeoutSink) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	if pcm, frames := s.buf.Flush(); pcm != nil {
		s.emit(pcm, frames)
	}
}

func (s *timeoutSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// ─── Energy policy ───────────────────────────────────────────────────────────

// EnergyPolicy appends frames above a silence threshold and flushes on the
// first silent frame after speech. Leading silence is discarded.
type EnergyPolicy struct {
	Capacity  int   // buffer capacity in frames
	Margin    int   // hard-cap margin in frames
	Threshold int64 // silence threshold on summed absolute sample values
	codec     Codec
}

// NewEnergyPolicy returns an energy flush policy for the codec's frame
// format.
func NewEnergyPolicy(codec Codec, capacityFrames, marginFrames int, threshold int64) *EnergyPolicy {
	return &EnergyPolicy{
		Capacity:  capacityFrames,
		Margin:    marginFrames,
		Threshold: threshold,
		codec:     codec,
	}
}

// Name implements FlushPolicy.
func (p *EnergyPolicy) Name() PolicyName { return PolicyEnergy }

// NewSink implements FlushPolicy.
func (p *EnergyPolicy) NewSink(emit func(pcm []byte, frames int)) Sink {
	return &energySink{
		buf:       NewBuffer(p.Capacity, p.Margin, p.codec.FrameSamples()),
		threshold: p.Threshold,
		emit:      emit,
	}
}

type energySink struct {
	mu        sync.Mutex
	buf       *Buffer
	threshold int64
	emit      func(pcm []byte, frames int)
	closed    bool
}

func (s *energySink) Write(frame []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if Energy(frame) > s.threshold {
		if pcm, frames := s.buf.Append(frame); pcm != nil {
			s.emit(pcm, frames)
		}
		return
	}
	// Silent frame: flush accumulated speech, discard the frame itself.
	if pcm, frames := s.buf.Flush(); pcm != nil {
		s.emit(pcm, frames)
	}
}

func (s *energySink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// ─── VAD policy ──────────────────────────────────────────────────────────────

// VADPolicy delegates frame classification to a voice activity detection
// engine: frames inside a speech segment are buffered and the segment end
// flushes them. Hangover padding is part of the segment; leading silence
// never enters the buffer.
type VADPolicy struct {
	Capacity int        // buffer capacity in frames
	Margin   int        // hard-cap margin in frames
	Cfg      vad.Config // session tuning passed to every new sink
	engine   vad.Engine
	codec    Codec
}

// NewVADPolicy returns a detection-driven flush policy. The session config
// is checked up front with a probe session, so a bad threshold fails
// session start instead of surfacing once per speaker.
func NewVADPolicy(codec Codec, capacityFrames, marginFrames int, engine vad.Engine, cfg vad.Config) (*VADPolicy, error) {
	probe, err := engine.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("capture: vad policy: %w", err)
	}
	probe.Close()
	return &VADPolicy{
		Capacity: capacityFrames,
		Margin:   marginFrames,
		Cfg:      cfg,
		engine:   engine,
		codec:    codec,
	}, nil
}

// Name implements FlushPolicy.
func (p *VADPolicy) Name() PolicyName { return PolicyVAD }

// NewSink implements FlushPolicy. A speaker whose detection session cannot
// be created still gets a sink; it buffers every frame and relies on the
// hard cap, so the audio keeps flowing while detection is unavailable.
func (p *VADPolicy) NewSink(emit func(pcm []byte, frames int)) Sink {
	sess, err := p.engine.NewSession(p.Cfg)
	if err != nil {
		slog.Warn("vad session unavailable, buffering without detection", "err", err)
		sess = nil
	}
	return &vadSink{
		buf:  NewBuffer(p.Capacity, p.Margin, p.codec.FrameSamples()),
		sess: sess,
		emit: emit,
	}
}

// vadSink buffers the frames its detection session classifies as speech
// and flushes when the session reports the segment end. Frames the session
// fails to classify are dropped; the first failure is logged.
type vadSink struct {
	mu     sync.Mutex
	buf    *Buffer
	sess   vad.Session // nil when detection is unavailable
	emit   func(pcm []byte, frames int)
	warned bool
	closed bool
}

func (s *vadSink) Write(frame []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.sess == nil {
		if pcm, frames := s.buf.Append(frame); pcm != nil {
			s.emit(pcm, frames)
		}
		return
	}

	ev, err := s.sess.Process(frame)
	if err != nil {
		if !s.warned {
			slog.Warn("vad classification failed, dropping frames", "err", err)
			s.warned = true
		}
		return
	}
	switch ev.Type {
	case vad.SpeechStart, vad.SpeechContinue:
		if pcm, frames := s.buf.Append(frame); pcm != nil {
			s.emit(pcm, frames)
		}
	case vad.SpeechEnd:
		// The segment-end frame is trailing silence and stays out of the
		// flush.
		if pcm, frames := s.buf.Flush(); pcm != nil {
			s.emit(pcm, frames)
		}
	}
	// Silence frames are discarded.
}

func (s *vadSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.sess != nil {
		if err := s.sess.Close(); err != nil {
			slog.Debug("vad session close failed", "err", err)
		}
	}
}

// Compile-time interface assertions.
var (
	_ FlushPolicy = (*TimeoutPolicy)(nil)
	_ FlushPolicy = (*EnergyPolicy)(nil)
	_ FlushPolicy = (*VADPolicy)(nil)
	_ Sink        = (*timeoutSink)(nil)
	_ Sink        = (*energySink)(nil)
	_ Sink        = (*vadSink)(nil)
)
