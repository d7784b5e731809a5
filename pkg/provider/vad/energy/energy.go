// Package energy implements a voice activity detection engine on frame
// energy.
//
// A frame's speech probability is its mean absolute amplitude scaled to
// [0, 1]. That is a crude stand-in for a trained model, but it needs no
// weights, adds no latency and separates speech from channel noise well
// enough to cut utterances on a voice channel. Sensitivity is tuned with
// the two thresholds in [vad.Config]; the defaults suit typical consumer
// microphone levels.
package energy

import (
	"errors"
	"fmt"

	"github.com/alvinbot/alvin/pkg/provider/vad"
)

// Defaults applied by [Engine.NewSession] for zero-valued config fields.
// A threshold of 0.015 corresponds to a mean amplitude of roughly 490 on
// int16 samples; quiet-room noise floors sit well below that. 25 hangover
// frames is half a second of 20 ms frames.
const (
	DefaultSpeechThreshold  = 0.015
	DefaultSilenceThreshold = 0.008
	DefaultHangoverFrames   = 25
)

// ErrSessionClosed is returned by Process after the session was closed.
var ErrSessionClosed = errors.New("energy: session closed")

// Engine creates energy detection sessions. It is stateless; the zero
// value is usable.
type Engine struct{}

// NewEngine returns an energy detection engine.
func NewEngine() *Engine { return &Engine{} }

// NewSession implements [vad.Engine]. Zero-valued config fields fall back
// to the package defaults before validation.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = DefaultSpeechThreshold
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.HangoverFrames == 0 {
		cfg.HangoverFrames = DefaultHangoverFrames
	}

	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: speech threshold %v outside [0, 1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %v must be between 0 and the speech threshold", cfg.SilenceThreshold)
	}
	if cfg.HangoverFrames < 0 {
		return nil, fmt.Errorf("energy: hangover frames %d must not be negative", cfg.HangoverFrames)
	}
	return &session{cfg: cfg}, nil
}

// session is the per-stream hysteresis state machine. Not safe for
// concurrent use, per the [vad.Session] contract.
type session struct {
	cfg      vad.Config
	inSpeech bool
	quiet    int // consecutive silent frames inside the current segment
	closed   bool
}

// Process implements [vad.Session].
func (s *session) Process(frame []int16) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, ErrSessionClosed
	}
	prob := probability(frame)

	if !s.inSpeech {
		if prob >= s.cfg.SpeechThreshold {
			s.inSpeech = true
			s.quiet = 0
			return vad.Event{Type: vad.SpeechStart, Probability: prob}, nil
		}
		return vad.Event{Type: vad.Silence, Probability: prob}, nil
	}

	if prob > s.cfg.SilenceThreshold {
		s.quiet = 0
		return vad.Event{Type: vad.SpeechContinue, Probability: prob}, nil
	}
	s.quiet++
	if s.quiet <= s.cfg.HangoverFrames {
		return vad.Event{Type: vad.SpeechContinue, Probability: prob}, nil
	}
	s.inSpeech = false
	s.quiet = 0
	return vad.Event{Type: vad.SpeechEnd, Probability: prob}, nil
}

// Reset implements [vad.Session].
func (s *session) Reset() {
	s.inSpeech = false
	s.quiet = 0
}

// Close implements [vad.Session].
func (s *session) Close() error {
	s.closed = true
	return nil
}

// probability maps a frame to a speech probability: the mean absolute
// amplitude scaled by the int16 range. Empty frames score 0.
func probability(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum int64
	for _, v := range frame {
		a := int64(v)
		if a < 0 {
			a = -a
		}
		sum += a
	}
	return float64(sum) / float64(len(frame)) / 32768
}

var (
	_ vad.Engine  = (*Engine)(nil)
	_ vad.Session = (*session)(nil)
)
