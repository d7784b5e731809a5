// This file contains the Native provider backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/alvinbot/alvin/pkg/audio"
	"github.com/alvinbot/alvin/pkg/provider/stt"
)

var _ stt.Provider = (*Native)(nil)

// Native implements [stt.Provider] using the whisper.cpp Go bindings,
// eliminating HTTP overhead entirely. The model is loaded once and shared
// by all Transcribe calls; each call runs on a fresh whisper context, so
// concurrent transcriptions do not interfere.
type Native struct {
	language string
	input    audio.Format
	conv     audio.FormatConverter

	mu    sync.Mutex
	model whisperlib.Model
}

// NativeOption is a functional option for configuring a [Native] provider.
type NativeOption func(*Native)

// WithNativeLanguage sets the language code for transcription (e.g. "en",
// "de", "pl"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *Native) { p.language = lang }
}

// WithNativeInputFormat declares the PCM format of audio passed to
// Transcribe. Defaults to 48 kHz stereo.
func WithNativeInputFormat(f audio.Format) NativeOption {
	return func(p *Native) {
		if f.SampleRate > 0 && f.Channels > 0 {
			p.input = f
		}
	}
}

// NewNative creates a Native provider by loading the ggml model from
// modelPath. The caller must call Close when the provider is no longer
// needed to release the model.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Native{
		language: defaultLanguage,
		input:    defaultInputFormat,
		conv:     audio.FormatConverter{Target: audio.Format{SampleRate: whisperSampleRate, Channels: whisperChannels}},
		model:    model,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe converts the utterance to 16 kHz mono float32 samples and
// runs whisper.cpp inference on a fresh context. Confidence is the mean
// token probability across all decoded segments.
func (p *Native) Transcribe(ctx context.Context, pcm []byte) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: transcribe: %w", err)
	}

	mono := p.conv.Convert(pcm, p.input)
	if len(mono) == 0 {
		return nil, nil
	}
	samples := pcmToFloat32(mono)

	p.mu.Lock()
	model := p.model
	p.mu.Unlock()
	if model == nil {
		return nil, errors.New("whisper: provider is closed")
	}

	// Contexts are not thread-safe; the shared model is. One fresh
	// context per inference keeps Transcribe concurrency-safe.
	wctx, err := model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts      []string
		probSum    float64
		tokenCount int
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range segment.Tokens {
			probSum += float64(tok.P)
			tokenCount++
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		return nil, nil
	}

	var confidence float64
	if tokenCount > 0 {
		confidence = probSum / float64(tokenCount)
		if confidence > 1 {
			confidence = 1
		}
		if confidence < 0 {
			confidence = 0
		}
	}

	return &stt.Result{Text: text, Confidence: confidence}, nil
}

// Close releases the whisper model. Safe to call more than once.
func (p *Native) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}
