package deepgram

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/alvinbot/alvin/pkg/audio"
)

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.language != defaultLanguage {
		t.Errorf("expected language %q, got %q", defaultLanguage, p.language)
	}
	if p.baseURL != defaultBaseURL {
		t.Errorf("expected baseURL %q, got %q", defaultBaseURL, p.baseURL)
	}
	if p.input != defaultInputFormat {
		t.Errorf("expected input format %v, got %v", defaultInputFormat, p.input)
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("key",
		WithModel("base"),
		WithLanguage("pl"),
		WithInputFormat(audio.Format{SampleRate: 16000, Channels: 1}),
		WithKeywords("alvin:5", "jarvis"),
		WithBaseURL("ws://localhost:9999/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "base" {
		t.Errorf("expected model 'base', got %q", p.model)
	}
	if p.language != "pl" {
		t.Errorf("expected language 'pl', got %q", p.language)
	}
	if p.input.SampleRate != 16000 || p.input.Channels != 1 {
		t.Errorf("expected 16kHz mono input, got %v", p.input)
	}
	if len(p.keywords) != 2 {
		t.Errorf("expected 2 keywords, got %v", p.keywords)
	}
	if p.baseURL != "ws://localhost:9999" {
		t.Errorf("expected trailing slash trimmed, got %q", p.baseURL)
	}
}

// ---- URL construction ----

func TestListenURL_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u, err := url.Parse(p.listenURL())
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	if u.Path != listenPath {
		t.Errorf("path = %q, want %q", u.Path, listenPath)
	}

	q := u.Query()
	tests := []struct{ key, want string }{
		{"model", "nova-3"},
		{"language", "en"},
		{"encoding", "linear16"},
		{"sample_rate", "16000"},
		{"channels", "1"},
		{"punctuate", "true"},
	}
	for _, tt := range tests {
		if got := q.Get(tt.key); got != tt.want {
			t.Errorf("query %s = %q, want %q", tt.key, got, tt.want)
		}
	}
	if _, ok := q["keywords"]; ok {
		t.Error("expected no keywords param when none configured")
	}
}

func TestListenURL_Keywords(t *testing.T) {
	p, err := New("key", WithKeywords("alvin:5", "jarvis:3.5"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u, _ := url.Parse(p.listenURL())
	kws := u.Query()["keywords"]
	if len(kws) != 2 || kws[0] != "alvin:5" || kws[1] != "jarvis:3.5" {
		t.Errorf("keywords = %v, want [alvin:5 jarvis:3.5]", kws)
	}
}

// ---- Result assembly ----

func TestAssembleResult_NoFinals(t *testing.T) {
	if res := assembleResult(nil); res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
}

func TestAssembleResult_SingleSegment(t *testing.T) {
	res := assembleResult([]finalResult{{text: "hello there", confidence: 0.9}})
	if res == nil {
		t.Fatal("expected a result")
	}
	if res.Text != "hello there" {
		t.Errorf("text = %q, want 'hello there'", res.Text)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", res.Confidence)
	}
}

func TestAssembleResult_WeightsByWordCount(t *testing.T) {
	res := assembleResult([]finalResult{
		{text: "hi", confidence: 1.0},
		{text: "how are you", confidence: 0.5},
	})
	if res == nil {
		t.Fatal("expected a result")
	}
	if res.Text != "hi how are you" {
		t.Errorf("text = %q, want joined segments", res.Text)
	}
	// (1.0*1 + 0.5*3) / 4
	if math.Abs(res.Confidence-0.625) > 1e-9 {
		t.Errorf("confidence = %v, want 0.625", res.Confidence)
	}
}

// ---- Transcribe round trips ----

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startListenServer launches a test WebSocket server. The handler receives
// the accepted conn. The server is automatically closed when the test
// finishes.
func startListenServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// sendText writes a raw text frame.
func sendText(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		t.Logf("sendText: %v (may be expected on close)", err)
	}
}

// drainAudio reads frames until the CloseStream text frame arrives,
// returning the total binary payload size and the text frame.
func drainAudio(t *testing.T, conn *websocket.Conn) (audioBytes int, closeMsg string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("drainAudio: %v", err)
			return audioBytes, ""
		}
		if typ == websocket.MessageBinary {
			audioBytes += len(data)
			continue
		}
		return audioBytes, string(data)
	}
}

const (
	finalHello   = `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello there","confidence":0.9}]}}`
	interimHello = `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hello","confidence":0.4}]}}`
	emptyFinal   = `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"","confidence":0}]}}`
	metadata     = `{"type":"Metadata","request_id":"abc"}`
)

// identityInput makes Transcribe pass PCM through unconverted so byte
// counts can be asserted exactly.
var identityInput = WithInputFormat(audio.Format{SampleRate: listenSampleRate, Channels: listenChannels})

func TestTranscribe_RoundTrip(t *testing.T) {
	authCh := make(chan string, 1)
	bytesCh := make(chan int, 1)
	closeCh := make(chan string, 1)

	srv := startListenServer(t, func(conn *websocket.Conn, r *http.Request) {
		authCh <- r.Header.Get("Authorization")
		n, closeMsg := drainAudio(t, conn)
		bytesCh <- n
		closeCh <- closeMsg
		sendText(t, conn, finalHello)
		sendText(t, conn, metadata)
	})

	p, err := New("test-key", WithBaseURL(wsURL(srv)), identityInput)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	pcm := make([]byte, 3200)
	res, err := p.Transcribe(ctx, pcm)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res == nil || res.Text != "hello there" {
		t.Fatalf("result = %+v, want text 'hello there'", res)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", res.Confidence)
	}

	if auth := <-authCh; auth != "Token test-key" {
		t.Errorf("Authorization = %q, want 'Token test-key'", auth)
	}
	if n := <-bytesCh; n != len(pcm) {
		t.Errorf("server received %d audio bytes, want %d", n, len(pcm))
	}
	if msg := <-closeCh; msg != `{"type":"CloseStream"}` {
		t.Errorf("close message = %q, want CloseStream", msg)
	}
}

func TestTranscribe_ChunksLargeUtterances(t *testing.T) {
	bytesCh := make(chan int, 1)

	srv := startListenServer(t, func(conn *websocket.Conn, _ *http.Request) {
		n, _ := drainAudio(t, conn)
		bytesCh <- n
		sendText(t, conn, finalHello)
		sendText(t, conn, metadata)
	})

	p, err := New("key", WithBaseURL(wsURL(srv)), identityInput)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	pcm := make([]byte, writeChunkBytes*2+100)
	if _, err := p.Transcribe(ctx, pcm); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if n := <-bytesCh; n != len(pcm) {
		t.Errorf("server received %d audio bytes, want %d", n, len(pcm))
	}
}

func TestTranscribe_IgnoresInterimResults(t *testing.T) {
	srv := startListenServer(t, func(conn *websocket.Conn, _ *http.Request) {
		drainAudio(t, conn)
		sendText(t, conn, interimHello)
		sendText(t, conn, finalHello)
		sendText(t, conn, metadata)
	})

	p, err := New("key", WithBaseURL(wsURL(srv)), identityInput)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	res, err := p.Transcribe(ctx, make([]byte, 320))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res == nil || res.Text != "hello there" {
		t.Fatalf("result = %+v, want only the final segment", res)
	}
}

func TestTranscribe_NoSpeech(t *testing.T) {
	srv := startListenServer(t, func(conn *websocket.Conn, _ *http.Request) {
		drainAudio(t, conn)
		sendText(t, conn, emptyFinal)
		sendText(t, conn, metadata)
	})

	p, err := New("key", WithBaseURL(wsURL(srv)), identityInput)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	res, err := p.Transcribe(ctx, make([]byte, 320))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil for silence", res)
	}
}

func TestTranscribe_ConvertsCaptureFormat(t *testing.T) {
	bytesCh := make(chan int, 1)

	srv := startListenServer(t, func(conn *websocket.Conn, _ *http.Request) {
		n, _ := drainAudio(t, conn)
		bytesCh <- n
		sendText(t, conn, finalHello)
		sendText(t, conn, metadata)
	})

	// Default input is 48 kHz stereo; conversion to 16 kHz mono shrinks
	// the clip by a factor of 6.
	p, err := New("key", WithBaseURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if _, err := p.Transcribe(ctx, make([]byte, 4800)); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if n := <-bytesCh; n != 800 {
		t.Errorf("server received %d audio bytes, want 800", n)
	}
}

func TestTranscribe_CloseAfterResults_ReturnsTranscript(t *testing.T) {
	srv := startListenServer(t, func(conn *websocket.Conn, _ *http.Request) {
		drainAudio(t, conn)
		sendText(t, conn, finalHello)
		// Close without Metadata.
	})

	p, err := New("key", WithBaseURL(wsURL(srv)), identityInput)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	res, err := p.Transcribe(ctx, make([]byte, 320))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res == nil || res.Text != "hello there" {
		t.Fatalf("result = %+v, want text despite missing metadata", res)
	}
}

func TestTranscribe_CloseBeforeResults_ReturnsError(t *testing.T) {
	srv := startListenServer(t, func(conn *websocket.Conn, _ *http.Request) {
		drainAudio(t, conn)
	})

	p, err := New("key", WithBaseURL(wsURL(srv)), identityInput)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if _, err := p.Transcribe(ctx, make([]byte, 320)); err == nil {
		t.Error("expected error when the server closed before any results")
	}
}

func TestTranscribe_DialFailure_ReturnsError(t *testing.T) {
	srv := startListenServer(t, func(_ *websocket.Conn, _ *http.Request) {})
	addr := wsURL(srv)
	srv.Close()

	p, err := New("key", WithBaseURL(addr), identityInput)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if _, err := p.Transcribe(ctx, make([]byte, 320)); err == nil {
		t.Error("expected dial error against a closed server")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, err := New("key", identityInput)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Transcribe(t.Context(), nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil without dialing", res)
	}
}
