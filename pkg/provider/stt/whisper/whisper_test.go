package whisper_test

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alvinbot/alvin/pkg/audio"
	"github.com/alvinbot/alvin/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// newMockServer creates a test server that responds to POST /inference with
// the given JSON document. It increments *callCount on every matched request.
func newMockServer(t *testing.T, response map[string]any, callCount *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
}

// makeStereoPCM generates `frames` frames of 48 kHz stereo 16-bit PCM with a
// constant non-zero sample value.
func makeStereoPCM(frames int) []byte {
	buf := make([]byte, frames*4)
	for i := 0; i < frames*2; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(1000)))
	}
	return buf
}

// segments builds the verbose_json segments array from avg_logprob values.
func segments(logprobs ...float64) []map[string]float64 {
	out := make([]map[string]float64, len(logprobs))
	for i, lp := range logprobs {
		out[i] = map[string]float64{"avg_logprob": lp}
	}
	return out
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_ValidServerURL_ReturnsProvider(t *testing.T) {
	p, err := whisper.New("http://localhost:8080")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithLanguage("de"),
		whisper.WithInputFormat(audio.Format{SampleRate: 16000, Channels: 1}),
		whisper.WithTimeout(5_000_000_000),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_ReturnsTextAndConfidence(t *testing.T) {
	srv := newMockServer(t, map[string]any{
		"text":     "  Hello darkness my old friend\n",
		"segments": segments(-0.105, -0.223),
	}, nil)
	defer srv.Close()

	// Trailing slash must not produce a double-slash endpoint.
	p, _ := whisper.New(srv.URL + "/")
	res, err := p.Transcribe(t.Context(), makeStereoPCM(480))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res == nil {
		t.Fatal("expected non-nil result")
	}
	if res.Text != "Hello darkness my old friend" {
		t.Errorf("Text = %q; want %q", res.Text, "Hello darkness my old friend")
	}
	want := math.Exp((-0.105 + -0.223) / 2)
	if math.Abs(res.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %f; want %f", res.Confidence, want)
	}
}

func TestTranscribe_ConfidenceEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		segments []map[string]float64
		want     float64
	}{
		{"no segments", segments(), 0},
		{"positive logprob clamps to one", segments(0.5), 1},
		{"certain speech", segments(0, 0), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newMockServer(t, map[string]any{
				"text":     "hi",
				"segments": tt.segments,
			}, nil)
			defer srv.Close()

			p, _ := whisper.New(srv.URL)
			res, err := p.Transcribe(t.Context(), makeStereoPCM(480))
			if err != nil {
				t.Fatalf("Transcribe: %v", err)
			}
			if res == nil {
				t.Fatal("expected non-nil result")
			}
			if math.Abs(res.Confidence-tt.want) > 1e-9 {
				t.Errorf("Confidence = %f; want %f", res.Confidence, tt.want)
			}
		})
	}
}

func TestTranscribe_EmptyTextMeansNoSpeech(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, map[string]any{"text": "  \n "}, &calls)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	res, err := p.Transcribe(t.Context(), makeStereoPCM(480))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result for whitespace-only text, got %+v", res)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("inference called %d time(s); want 1", n)
	}
}

func TestTranscribe_EmptyAudio_SkipsInference(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, map[string]any{"text": "unexpected"}, &calls)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	res, err := p.Transcribe(t.Context(), nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result for empty audio, got %+v", res)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("inference called %d time(s) for empty audio; want 0", n)
	}
}

func TestTranscribe_ServerError_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(t.Context(), makeStereoPCM(480))
	if err == nil {
		t.Fatal("expected error for HTTP 500, got nil")
	}
}

// ---- request shape ----------------------------------------------------------

func TestTranscribe_SendsExpectedRequest(t *testing.T) {
	type captured struct {
		fields map[string]string
		wav    []byte
	}
	got := make(chan captured, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		wav, _ := io.ReadAll(f)
		got <- captured{
			fields: map[string]string{
				"filename":        hdr.Filename,
				"response_format": r.FormValue("response_format"),
				"language":        r.FormValue("language"),
				"model":           r.FormValue("model"),
			},
			wav: wav,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "ok"})
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL, whisper.WithModel("small"), whisper.WithLanguage("de"))
	// 48 frames of 48 kHz stereo become 16 samples of 16 kHz mono.
	if _, err := p.Transcribe(t.Context(), makeStereoPCM(48)); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	req := <-got
	if req.fields["filename"] != "audio.wav" {
		t.Errorf("filename = %q; want %q", req.fields["filename"], "audio.wav")
	}
	if req.fields["response_format"] != "verbose_json" {
		t.Errorf("response_format = %q; want %q", req.fields["response_format"], "verbose_json")
	}
	if req.fields["language"] != "de" {
		t.Errorf("language = %q; want %q", req.fields["language"], "de")
	}
	if req.fields["model"] != "small" {
		t.Errorf("model = %q; want %q", req.fields["model"], "small")
	}

	wav := req.wav
	if len(wav) != 44+32 {
		t.Fatalf("wav length = %d; want %d", len(wav), 44+32)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("wav data is missing RIFF/WAVE markers")
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("wav channels = %d; want 1", ch)
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("wav sample rate = %d; want 16000", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != 32 {
		t.Errorf("wav data size = %d; want 32", size)
	}
}
