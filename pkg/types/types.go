// Package types defines the shared data structures passed between the
// capture layer, the conversation pipeline, and the provider seams.
//
// Each package keeps its own domain types; only cross-cutting data
// structures live here, which also avoids circular imports.
package types

// Message is a single conversation message in provider-neutral form.
// Role is one of "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// SystemMessage returns a Message with the system role.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage returns a Message with the user role.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage returns a Message with the assistant role.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// AudioChunk is one flushed stretch of a single speaker's audio, emitted by
// the capture router and consumed by the transcription stage.
//
// PCM is 16-bit signed little-endian interleaved audio in the capture
// format (48 kHz stereo unless configured otherwise). Frames is the number
// of fixed-size frames the chunk was assembled from.
type AudioChunk struct {
	SpeakerID string
	PCM       []byte
	Frames    int
}

// Transcript is the result of transcribing one AudioChunk.
// Confidence is normalised to [0, 1]; providers that cannot estimate
// confidence report 0.
type Transcript struct {
	SpeakerID  string
	Text       string
	Confidence float64
}
