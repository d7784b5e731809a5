// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g. OpenAI or
// ElevenLabs) behind a single batch call: text in, one PCM clip out. The
// pipeline splits replies into sentence segments and synthesises them
// concurrently, so the latency win of intra-segment streaming is small;
// a batch contract keeps providers trivial to implement and to mock.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Clip is one synthesised utterance.
type Clip struct {
	// PCM is 16-bit signed little-endian audio.
	PCM []byte

	// SampleRate is the clip's sample rate in Hz.
	SampleRate int

	// Channels is the interleaved channel count (1 = mono).
	Channels int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into a PCM clip. It must respect ctx
	// cancellation and return a non-nil Clip on success; an empty text
	// input is an error.
	Synthesize(ctx context.Context, text string) (*Clip, error)
}
