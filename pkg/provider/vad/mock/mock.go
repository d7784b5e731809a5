// Package mock provides test doubles for the vad package interfaces.
//
// Engine records the configs passed to NewSession and hands out a
// configurable Session. Session replays a scripted queue of events and
// keeps copies of every processed frame, so tests can walk a buffering
// sink through an exact speech segment.
//
// Example:
//
//	sess := &mock.Session{Events: []vad.Event{
//	    {Type: vad.SpeechStart, Probability: 0.9},
//	    {Type: vad.SpeechEnd, Probability: 0.1},
//	}}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/alvinbot/alvin/pkg/provider/vad"
)

// Engine is a mock implementation of [vad.Engine].
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, NewSession returns a
	// fresh default Session per call.
	Session vad.Session

	// NewSessionErr, if non-nil, is returned by every NewSession call.
	NewSessionErr error

	// NewSessionCalls records the config of every NewSession call in
	// order.
	NewSessionCalls []vad.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// NewSessionCallCount returns the number of NewSession calls. Thread-safe.
func (e *Engine) NewSessionCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.NewSessionCalls)
}

var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of [vad.Session].
type Session struct {
	mu sync.Mutex

	// Events is a queue of results consumed one per Process call. When
	// the queue is exhausted, Event is returned instead.
	Events []vad.Event

	// Event is the fallback result once Events is drained. Its zero value
	// classifies every frame as silence.
	Event vad.Event

	// ProcessErr, if non-nil, is returned by every Process call.
	ProcessErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// Frames holds a copy of every frame passed to Process, in order.
	Frames [][]int16

	// ResetCallCount is the number of Reset calls.
	ResetCallCount int

	// CloseCallCount is the number of Close calls.
	CloseCallCount int
}

// Process records the frame and returns the next scripted event.
func (s *Session) Process(frame []int16) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int16, len(frame))
	copy(cp, frame)
	s.Frames = append(s.Frames, cp)
	if s.ProcessErr != nil {
		return vad.Event{}, s.ProcessErr
	}
	if len(s.Events) > 0 {
		ev := s.Events[0]
		s.Events = s.Events[1:]
		return ev, nil
	}
	return s.Event, nil
}

// ProcessCallCount returns the number of Process calls. Thread-safe.
func (s *Session) ProcessCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames)
}

// Reset records the call.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

var _ vad.Session = (*Session)(nil)
