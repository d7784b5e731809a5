// Package vad defines the Engine interface for voice activity detection
// backends.
//
// An engine classifies decoded audio frame by frame and reports speech
// boundaries as events, which the capture layer uses to cut utterances
// where the speaker actually stops instead of waiting out a timer. Each
// audio stream gets its own [Session] so detection state never leaks
// between speakers.
//
// Detection is synchronous: Process returns immediately, which keeps it
// usable on the transport push path where a blocked call would lose
// packets.
package vad

// EventType classifies one frame relative to the speech state machine.
type EventType int

const (
	// Silence is a frame outside any speech segment.
	Silence EventType = iota

	// SpeechStart is the first frame of a new speech segment.
	SpeechStart

	// SpeechContinue is a frame inside an active segment, including the
	// hangover frames that pad the segment's tail.
	SpeechContinue

	// SpeechEnd closes a speech segment. The frame itself is trailing
	// silence, not speech.
	SpeechEnd
)

// String returns the snake_case name used in logs.
func (t EventType) String() string {
	switch t {
	case Silence:
		return "silence"
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	}
	return "unknown"
}

// Event is the classification of a single audio frame.
type Event struct {
	// Type is the frame's position in the speech state machine.
	Type EventType

	// Probability is the engine's speech probability for the frame,
	// normalised to [0, 1].
	Probability float64
}

// Config tunes a detection session. Thresholds are speech probabilities in
// [0, 1]; keeping SilenceThreshold below SpeechThreshold gives the state
// machine hysteresis, so a speaker hovering around one level does not flap
// between segments.
type Config struct {
	// SpeechThreshold is the probability at or above which a silent stream
	// enters a speech segment.
	SpeechThreshold float64

	// SilenceThreshold is the probability at or below which an active
	// segment counts a frame as silent. Must not exceed SpeechThreshold.
	SilenceThreshold float64

	// HangoverFrames is how many consecutive silent frames an active
	// segment absorbs before it ends. Absorbed frames are reported as
	// SpeechContinue so trailing consonants survive the cut.
	HangoverFrames int
}

// Session is an active detection stream. Sessions hold per-stream state
// and are not safe for concurrent use; callers serialise access per
// stream.
type Session interface {
	// Process classifies one decoded frame of interleaved int16 samples.
	Process(frame []int16) (Event, error)

	// Reset clears accumulated state without closing the session, for
	// streams that restart mid-flight.
	Reset()

	// Close releases session resources. Process after Close returns an
	// error. Safe to call more than once.
	Close() error
}

// Engine creates detection sessions. Implementations must be safe for
// concurrent use; sessions may be created for many speakers at once.
type Engine interface {
	// NewSession returns a session ready to accept frames, or an error
	// when cfg is invalid or resources cannot be allocated.
	NewSession(cfg Config) (Session, error)
}
