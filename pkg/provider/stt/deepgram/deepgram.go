// Package deepgram provides an STT provider backed by the Deepgram
// streaming WebSocket API.
//
// The /v1/listen endpoint is built for continuous audio, but the capture
// layer hands the assistant whole utterances, so this adapter drives a
// full round trip per Transcribe: open the socket, stream the converted
// audio as binary chunks, send a CloseStream marker, then collect final
// results until the server reports its closing metadata.
//
// Audio is accepted in the capture format configured at construction and
// converted to the 16 kHz mono linear16 stream Deepgram is told to expect.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/alvinbot/alvin/pkg/audio"
	"github.com/alvinbot/alvin/pkg/provider/stt"
)

const (
	defaultBaseURL  = "wss://api.deepgram.com"
	listenPath      = "/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"

	// listenSampleRate and listenChannels are the format advertised in the
	// listen URL; all input is converted to it before streaming.
	listenSampleRate = 16000
	listenChannels   = 1

	// writeChunkBytes is the binary frame size for audio uploads, 256ms of
	// 16 kHz mono 16-bit PCM per frame.
	writeChunkBytes = 8192
)

// defaultInputFormat matches the capture layer's Discord output.
var defaultInputFormat = audio.Format{SampleRate: 48000, Channels: 2}

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3", "base"). Defaults to
// "nova-3".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g. "en",
// "pl"). Defaults to "en".
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithInputFormat declares the PCM format of audio passed to Transcribe.
// Defaults to 48 kHz stereo, the capture layer's Discord output.
func WithInputFormat(f audio.Format) Option {
	return func(p *Provider) {
		if f.SampleRate > 0 && f.Channels > 0 {
			p.input = f
		}
	}
}

// WithKeywords boosts recognition of out-of-vocabulary words such as the
// assistant's activation words. Each entry is passed through verbatim, so
// a "word:boost" spelling like "alvin:5" is forwarded as-is.
func WithKeywords(keywords ...string) Option {
	return func(p *Provider) { p.keywords = keywords }
}

// WithBaseURL overrides the default API endpoint. Use a ws:// URL to point
// at a test server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// Provider implements [stt.Provider] backed by the Deepgram streaming API.
// It is safe for concurrent use; each Transcribe call opens its own
// WebSocket session.
type Provider struct {
	apiKey   string
	model    string
	language string
	baseURL  string
	keywords []string
	input    audio.Format
	conv     audio.FormatConverter
}

// New creates a Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		baseURL:  defaultBaseURL,
		input:    defaultInputFormat,
		conv:     audio.FormatConverter{Target: audio.Format{SampleRate: listenSampleRate, Channels: listenChannels}},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// listenResponse is the JSON shape of a Deepgram live message, trimmed to
// the fields the adapter consumes.
type listenResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// finalResult is one collected is_final segment of the utterance.
type finalResult struct {
	text       string
	confidence float64
}

// Transcribe converts the utterance to 16 kHz mono, streams it over a
// fresh WebSocket session and assembles the final results into one
// transcript. Confidence is the word-count-weighted mean of the segment
// confidences. A server that hears no speech yields a nil result.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (*stt.Result, error) {
	mono := p.conv.Convert(pcm, p.input)
	if len(mono) == 0 {
		return nil, nil
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, p.listenURL(), &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for off := 0; off < len(mono); off += writeChunkBytes {
		end := min(off+writeChunkBytes, len(mono))
		if err := conn.Write(ctx, websocket.MessageBinary, mono[off:end]); err != nil {
			return nil, fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	// CloseStream flushes buffered audio server-side; the session then
	// delivers its remaining results followed by a Metadata message.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return nil, fmt.Errorf("deepgram: close stream: %w", err)
	}

	finals, err := p.collectFinals(ctx, conn)
	if err != nil {
		return nil, err
	}
	return assembleResult(finals), nil
}

// collectFinals reads live messages until the closing Metadata message or
// the end of the stream, keeping every non-empty is_final segment. A
// stream that ends before any Results message is an error; silence is
// reported by Deepgram as Results with an empty transcript, not by a bare
// close.
func (p *Provider) collectFinals(ctx context.Context, conn *websocket.Conn) ([]finalResult, error) {
	var (
		finals     []finalResult
		sawResults bool
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if sawResults {
				return finals, nil
			}
			return nil, fmt.Errorf("deepgram: read results: %w", err)
		}

		var resp listenResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		switch resp.Type {
		case "Metadata":
			return finals, nil
		case "Results":
			sawResults = true
			if !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
				continue
			}
			alt := resp.Channel.Alternatives[0]
			text := strings.TrimSpace(alt.Transcript)
			if text == "" {
				continue
			}
			finals = append(finals, finalResult{text: text, confidence: alt.Confidence})
		}
	}
}

// assembleResult joins final segments into one transcript with a
// word-count-weighted mean confidence. No segments means no speech.
func assembleResult(finals []finalResult) *stt.Result {
	if len(finals) == 0 {
		return nil
	}

	parts := make([]string, 0, len(finals))
	var confSum, words float64
	for _, f := range finals {
		n := float64(len(strings.Fields(f.text)))
		parts = append(parts, f.text)
		confSum += f.confidence * n
		words += n
	}

	res := &stt.Result{Text: strings.Join(parts, " ")}
	if words > 0 {
		res.Confidence = confSum / words
	}
	return res
}

// Close implements [stt.Provider]. Sessions are per-call, so there is
// nothing to release.
func (p *Provider) Close() error { return nil }

// listenURL constructs the listen endpoint with the stream parameters.
func (p *Provider) listenURL() string {
	q := url.Values{}
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(listenSampleRate))
	q.Set("channels", strconv.Itoa(listenChannels))
	q.Set("punctuate", "true")
	for _, kw := range p.keywords {
		q.Add("keywords", kw)
	}
	return p.baseURL + listenPath + "?" + q.Encode()
}
