// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp server,
// in-process whisper.cpp bindings, or a remote API) behind a single batch
// operation: one flushed utterance of PCM audio in, one transcript out.
// Utterance segmentation happens upstream in the capture layer, so
// providers never see partial or overlapping audio.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Result is the outcome of transcribing one utterance.
type Result struct {
	// Text is the transcribed speech, trimmed of surrounding whitespace.
	Text string

	// Confidence is the provider's overall confidence in Text, normalised
	// to [0, 1]. Providers that cannot estimate confidence report 0.
	Confidence float64
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; transcriptions for
// different speakers may run at the same time.
type Provider interface {
	// Transcribe converts one utterance of 16-bit little-endian PCM into
	// text. The audio format is fixed at construction time. A nil result
	// with a nil error means the provider recognised no speech; callers
	// skip such utterances.
	Transcribe(ctx context.Context, pcm []byte) (*Result, error)

	// Close releases provider resources such as loaded models. Providers
	// without state return nil. Close is safe to call more than once.
	Close() error
}
