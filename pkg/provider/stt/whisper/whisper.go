// Package whisper provides whisper.cpp-backed STT providers.
//
// Two implementations are available:
//
//   - [Provider] talks to a running whisper-server binary over its REST API
//     (POST /inference), uploading each utterance as a WAV file.
//   - [Native] (native.go) loads a ggml model in-process through the
//     whisper.cpp Go bindings, avoiding the server round trip at the cost
//     of linking the C library.
//
// Both accept audio in the capture format configured at construction and
// convert it to the 16 kHz mono PCM whisper.cpp expects.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithInputFormat(audio.Format{SampleRate: 48000, Channels: 2}),
//	)
//	res, err := p.Transcribe(ctx, pcm)
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/alvinbot/alvin/pkg/audio"
	"github.com/alvinbot/alvin/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the signed little-endian PCM audio
	// whisper.cpp expects.
	bitsPerSample = 16

	// whisperSampleRate and whisperChannels are the audio format
	// whisper.cpp models are trained on. All input is converted to this
	// format before inference.
	whisperSampleRate = 16000
	whisperChannels   = 1

	defaultLanguage = "en"
)

// defaultInputFormat matches the capture layer's Discord output.
var defaultInputFormat = audio.Format{SampleRate: 48000, Channels: 2}

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g. "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper-server (e.g.
// "en", "de", "pl"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
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

// WithTimeout sets the HTTP timeout for inference requests. Defaults to
// 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// Provider implements [stt.Provider] backed by a whisper-server HTTP
// endpoint. It is safe for concurrent use; each Transcribe call is an
// independent request.
type Provider struct {
	serverURL  string
	model      string
	language   string
	input      audio.Format
	conv       audio.FormatConverter
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper-server at serverURL
// (e.g. "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		input:      defaultInputFormat,
		conv:       audio.FormatConverter{Target: audio.Format{SampleRate: whisperSampleRate, Channels: whisperChannels}},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe converts the utterance to 16 kHz mono, wraps it in a WAV
// container and posts it to the whisper-server /inference endpoint. The
// verbose JSON response carries per-segment average log probabilities,
// which become the transcript confidence.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (*stt.Result, error) {
	mono := p.conv.Convert(pcm, p.input)
	if len(mono) == 0 {
		return nil, nil
	}

	text, confidence, err := p.infer(ctx, encodeWAV(mono, whisperSampleRate, whisperChannels))
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return &stt.Result{Text: text, Confidence: confidence}, nil
}

// Close implements [stt.Provider]. The HTTP provider holds no resources.
func (p *Provider) Close() error { return nil }

// inferenceResponse is the verbose_json shape returned by whisper-server.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// infer uploads wav as multipart/form-data and returns the transcription
// with its confidence.
func (p *Provider) infer(ctx context.Context, wav []byte) (string, float64, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", 0, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", 0, fmt.Errorf("whisper: write wav data: %w", err)
	}

	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return "", 0, fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if p.language != "" {
		if err := mw.WriteField("language", p.language); err != nil {
			return "", 0, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return "", 0, fmt.Errorf("whisper: write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", 0, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", 0, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", 0, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return result.Text, segmentsConfidence(result), nil
}

// segmentsConfidence folds per-segment average log probabilities into one
// [0, 1] score: exp of the mean log probability, clamped. No segments
// means no estimate.
func segmentsConfidence(r inferenceResponse) float64 {
	if len(r.Segments) == 0 {
		return 0
	}
	var sum float64
	for _, s := range r.Segments {
		sum += s.AvgLogprob
	}
	conf := math.Exp(sum / float64(len(r.Segments)))
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container suitable for direct inclusion in a multipart upload.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
