package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alvinbot/alvin/internal/observe"
	"github.com/alvinbot/alvin/pkg/provider/tts"
)

// DefaultSegmentBatch is the number of sentence segments joined into one
// synthesis call when no batch size is configured.
const DefaultSegmentBatch = 2

// Unit is one playable piece of a response. Units carry a per-response
// index so the playback stage can assert ordering; a Final unit carries no
// audio and marks the end of the response's stream.
type Unit struct {
	Index      int
	Audio      []byte
	SampleRate int
	Channels   int
	Final      bool
}

// Synthesizer converts one response text into an ordered stream of playable
// units. Sentence segments are synthesised with one call of lookahead: the
// call for segment i+1 is issued while segment i is awaited, so at most two
// calls are in flight and units are always emitted in index order.
type Synthesizer struct {
	tts       tts.Provider
	batchSize int
	metrics   *observe.Metrics
	stats     StatsRecorder
}

// NewSynthesizer returns a Synthesizer over the given provider. batchSize
// is the number of sentences joined per synthesis call; values below 1 fall
// back to [DefaultSegmentBatch]. A nil metrics uses the package default.
func NewSynthesizer(p tts.Provider, batchSize int, m *observe.Metrics) *Synthesizer {
	if batchSize < 1 {
		batchSize = DefaultSegmentBatch
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Synthesizer{tts: p, batchSize: batchSize, metrics: m}
}

// synthResult carries one finished TTS call.
type synthResult struct {
	clip *tts.Clip
	err  error
}

// Synthesize splits text into segments, synthesises them and sends the
// resulting units on out in index order. A terminal Final unit is sent in
// every case, including after an error, so the consumer never waits on an
// aborted response. Returns the first synthesis error, if any.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, out chan<- Unit) error {
	segments := batchSegments(splitSegments(text), s.batchSize)

	defer func() {
		select {
		case out <- Unit{Index: len(segments), Final: true}:
		case <-ctx.Done():
		}
	}()

	if len(segments) == 0 {
		return nil
	}

	// Abandoning the response mid-way also stops the lookahead call. The
	// inner context keeps its own name: the deferred Final send above must
	// wait on the caller's ctx, not on this one, which is always cancelled
	// by the time defers run.
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	next := s.launch(sctx, segments[0])
	for i := range segments {
		cur := next
		next = nil
		if i+1 < len(segments) {
			next = s.launch(sctx, segments[i+1])
		}

		res := <-cur
		if res.err != nil {
			return fmt.Errorf("pipeline: synthesize segment %d: %w", i, res.err)
		}
		if res.clip == nil || len(res.clip.PCM) == 0 {
			slog.Debug("empty clip for segment, skipping", "index", i)
			continue
		}
		if i == 0 {
			s.metrics.TTSFirstSegment.Record(sctx, time.Since(start).Seconds())
		}

		unit := Unit{
			Index:      i,
			Audio:      res.clip.PCM,
			SampleRate: res.clip.SampleRate,
			Channels:   res.clip.Channels,
		}
		select {
		case out <- unit:
		case <-sctx.Done():
			return sctx.Err()
		}
	}
	return nil
}

// launch issues one TTS call in the background. The result channel is
// buffered so an abandoned call never leaks its goroutine.
func (s *Synthesizer) launch(ctx context.Context, text string) <-chan synthResult {
	ch := make(chan synthResult, 1)
	go func() {
		start := time.Now()
		clip, err := s.tts.Synthesize(ctx, text)
		elapsed := time.Since(start)
		s.metrics.TTSDuration.Record(ctx, elapsed.Seconds())
		if s.stats != nil {
			s.stats.RecordTTS(elapsed)
		}
		status := "ok"
		if err != nil {
			status = "error"
			s.metrics.RecordProviderError(ctx, "tts")
			if s.stats != nil {
				s.stats.IncrErrors()
			}
		}
		s.metrics.RecordProviderRequest(ctx, "tts", status)
		ch <- synthResult{clip: clip, err: err}
	}()
	return ch
}

// splitSegments cuts text into sentence segments: each segment is a run of
// non-terminator characters plus an optional trailing terminator (".", "!"
// or "?"). Segments are trimmed and empties dropped, so "What?!" yields
// "What?" and "!".
func splitSegments(text string) []string {
	var segs []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			segs = append(segs, s)
		}
		b.Reset()
	}
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()
	return segs
}

// batchSegments joins consecutive segments into groups of size separated by
// a space. The final group may be shorter.
func batchSegments(segs []string, size int) []string {
	if size <= 1 || len(segs) <= 1 {
		return segs
	}
	out := make([]string, 0, (len(segs)+size-1)/size)
	for i := 0; i < len(segs); i += size {
		out = append(out, strings.Join(segs[i:min(i+size, len(segs))], " "))
	}
	return out
}
