// Package pipeline wires a session's stages into the turn loop: captured
// audio chunks are transcribed, gated into conversation turns, answered by
// the language model, synthesised sentence by sentence and played back to
// the channel.
//
// The stages run as independent goroutines connected by bounded channels,
// so a slow stage applies backpressure instead of dropping work; dropping
// only happens at the capture boundary, which must never block the
// transport. Stopping closes the capture router and lets the close cascade
// drain the stages in order: each stage closes its output channel when its
// input channel closes.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/alvinbot/alvin/internal/capture"
	"github.com/alvinbot/alvin/internal/convo"
	"github.com/alvinbot/alvin/internal/observe"
	"github.com/alvinbot/alvin/pkg/audio"
	"github.com/alvinbot/alvin/pkg/provider/llm"
	"github.com/alvinbot/alvin/pkg/provider/stt"
	"github.com/alvinbot/alvin/pkg/provider/tts"
	"github.com/alvinbot/alvin/pkg/types"
)

const (
	transcriptQueueSize = 16
	responseQueueSize   = 4
	unitQueueSize       = 8

	// defaultPollInterval is how often the playback stage re-checks
	// Connection.IsPlaying while waiting out a clip.
	defaultPollInterval = 300 * time.Millisecond

	// stopGrace bounds the wait for stages after a hard cancel.
	stopGrace = 2 * time.Second
)

// Deps are the collaborators an Orchestrator drives. All fields are
// required.
type Deps struct {
	// Router is the capture router whose chunk queue feeds transcription.
	// The orchestrator takes ownership: Stop closes it.
	Router *capture.Router

	STT  stt.Provider
	LLM  llm.Provider
	TTS  tts.Provider
	Conn audio.Connection

	// Gate serialises the channel into turns.
	Gate *convo.Gate

	// History is the conversation context; the conversation stage is its
	// only writer.
	History *convo.Context
}

// StatsRecorder receives per-stage timings and counters as the pipeline
// processes turns. The OpenTelemetry metrics in observe remain the export
// path; a recorder is an in-process view for surfaces that need to read
// the numbers back, such as the status embed. Implementations must be
// safe for concurrent use.
type StatsRecorder interface {
	RecordSTT(d time.Duration)
	RecordLLM(d time.Duration)
	RecordTTS(d time.Duration)
	IncrUtterances()
	IncrErrors()
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSegmentBatch sets how many sentences are joined per synthesis call.
func WithSegmentBatch(n int) Option {
	return func(o *Orchestrator) { o.batchSize = n }
}

// WithStatsRecorder attaches a recorder for in-process stage statistics.
func WithStatsRecorder(r StatsRecorder) Option {
	return func(o *Orchestrator) { o.stats = r }
}

// WithPollInterval sets the playback polling interval, mainly for tests.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs the four pipeline stages for one voice session. Create
// with New, then Start once; Stop tears the pipeline down and is safe to
// call multiple times.
type Orchestrator struct {
	router  *capture.Router
	stt     stt.Provider
	llm     llm.Provider
	synth   *Synthesizer
	conn    audio.Connection
	gate    *convo.Gate
	history *convo.Context

	conv         audio.FormatConverter
	metrics      *observe.Metrics
	stats        StatsRecorder
	pollInterval time.Duration
	batchSize    int

	transcripts chan types.Transcript
	responses   chan string
	units       chan Unit

	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
}

// New validates deps and returns an unstarted Orchestrator.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Router == nil:
		return nil, errors.New("pipeline: capture router is required")
	case deps.STT == nil:
		return nil, errors.New("pipeline: stt provider is required")
	case deps.LLM == nil:
		return nil, errors.New("pipeline: llm provider is required")
	case deps.TTS == nil:
		return nil, errors.New("pipeline: tts provider is required")
	case deps.Conn == nil:
		return nil, errors.New("pipeline: voice connection is required")
	case deps.Gate == nil:
		return nil, errors.New("pipeline: turn gate is required")
	case deps.History == nil:
		return nil, errors.New("pipeline: conversation context is required")
	}

	o := &Orchestrator{
		router:       deps.Router,
		stt:          deps.STT,
		llm:          deps.LLM,
		conn:         deps.Conn,
		gate:         deps.Gate,
		history:      deps.History,
		conv:         audio.FormatConverter{Target: deps.Conn.PlaybackFormat()},
		metrics:      observe.DefaultMetrics(),
		pollInterval: defaultPollInterval,
		transcripts:  make(chan types.Transcript, transcriptQueueSize),
		responses:    make(chan string, responseQueueSize),
		units:        make(chan Unit, unitQueueSize),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.synth = NewSynthesizer(deps.TTS, o.batchSize, o.metrics)
	o.synth.stats = o.stats
	return o, nil
}

// Start launches the stage goroutines. ctx bounds the whole pipeline; it is
// cancelled internally by Stop. Start must be called at most once.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	var gctx context.Context
	o.group, gctx = errgroup.WithContext(ctx)

	o.group.Go(func() error { return o.transcribeLoop(gctx) })
	o.group.Go(func() error { return o.convoLoop(gctx) })
	o.group.Go(func() error { return o.synthLoop(gctx) })
	o.group.Go(func() error { return o.playLoop(gctx) })

	slog.Info("pipeline started",
		"playback_format", o.conv.Target.String(),
		"segment_batch", o.synth.batchSize)
}

// Stop closes the capture router and waits for the stages to drain. When
// ctx expires before they do, the stages are cancelled hard and the
// remaining wait is bounded. Safe to call more than once; later calls
// return nil.
func (o *Orchestrator) Stop(ctx context.Context) error {
	var err error
	o.stopOnce.Do(func() {
		o.router.Close()
		if o.group == nil {
			return // never started
		}

		done := make(chan error, 1)
		go func() { done <- o.group.Wait() }()

		select {
		case err = <-done:
		case <-ctx.Done():
			slog.Warn("pipeline did not drain in time, cancelling stages")
			o.cancel()
			select {
			case err = <-done:
			case <-time.After(stopGrace):
				err = errors.New("pipeline: stages did not stop")
				return
			}
		}
		o.cancel()
		slog.Info("pipeline stopped")
	})
	return err
}

// ─── Transcription stage ──────────────────────────────────────────────────────

func (o *Orchestrator) transcribeLoop(ctx context.Context) error {
	defer close(o.transcripts)
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-o.router.Chunks():
			if !ok {
				return nil
			}
			o.transcribe(ctx, chunk)
		}
	}
}

// transcribe runs one chunk through the STT provider. Failures drop the
// chunk and the loop continues; a session never dies to one bad call.
func (o *Orchestrator) transcribe(ctx context.Context, chunk types.AudioChunk) {
	start := time.Now()
	sctx, end := observe.StageSpan(ctx, "stt", chunk.SpeakerID)
	res, err := o.stt.Transcribe(sctx, chunk.PCM)
	end(err)
	elapsed := time.Since(start)
	o.metrics.STTDuration.Record(ctx, elapsed.Seconds())
	if o.stats != nil {
		o.stats.RecordSTT(elapsed)
	}
	if err != nil {
		o.metrics.RecordProviderRequest(ctx, "stt", "error")
		o.metrics.RecordProviderError(ctx, "stt")
		if o.stats != nil {
			o.stats.IncrErrors()
		}
		if ctx.Err() != nil {
			return
		}
		slog.Warn("transcription failed, dropping chunk",
			"speaker", chunk.SpeakerID, "frames", chunk.Frames, "err", err)
		return
	}
	o.metrics.RecordProviderRequest(ctx, "stt", "ok")

	if res == nil || strings.TrimSpace(res.Text) == "" {
		slog.Debug("no speech detected", "speaker", chunk.SpeakerID, "frames", chunk.Frames)
		return
	}

	if o.stats != nil {
		o.stats.IncrUtterances()
	}
	slog.Debug("transcript",
		"speaker", chunk.SpeakerID, "confidence", res.Confidence, "text", res.Text)
	select {
	case o.transcripts <- types.Transcript{SpeakerID: chunk.SpeakerID, Text: res.Text, Confidence: res.Confidence}:
	case <-ctx.Done():
	}
}

// ─── Conversation stage ───────────────────────────────────────────────────────

func (o *Orchestrator) convoLoop(ctx context.Context) error {
	defer close(o.responses)
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-o.transcripts:
			if !ok {
				return nil
			}
			o.converse(ctx, t)
		}
	}
}

// converse applies the gate to one transcript and, when it passes, runs a
// generation. Runs on a single goroutine, which makes it the sole writer of
// the history and guarantees at most one generation in flight.
func (o *Orchestrator) converse(ctx context.Context, t types.Transcript) {
	switch o.gate.Admit(t.SpeakerID, t.Text) {
	case convo.DecisionDiscard:
		reason := "no_activation"
		if o.gate.State() == convo.StateActive {
			reason = "floor_taken"
		}
		o.metrics.TranscriptsDiscarded.Add(ctx, 1, metric.WithAttributes(observe.Attr("reason", reason)))
		slog.Debug("transcript discarded", "speaker", t.SpeakerID, "reason", reason)
		return
	case convo.DecisionActivate:
		// A fresh turn must not inherit history from an aborted one.
		o.history.Reset()
		o.metrics.RecordTurn(ctx, "started")
		slog.Info("turn started", "speaker", t.SpeakerID, "confidence", t.Confidence)
	case convo.DecisionContinue:
	}

	o.history.AppendUser(t.Text)

	start := time.Now()
	sctx, end := observe.StageSpan(ctx, "llm", t.SpeakerID)
	reply, err := o.llm.Generate(sctx, o.history.Snapshot())
	end(err)
	elapsed := time.Since(start)
	o.metrics.LLMDuration.Record(ctx, elapsed.Seconds())
	if o.stats != nil {
		o.stats.RecordLLM(elapsed)
	}
	if err != nil {
		o.metrics.RecordProviderRequest(ctx, "llm", "error")
		o.metrics.RecordProviderError(ctx, "llm")
		if o.stats != nil {
			o.stats.IncrErrors()
		}
		if ctx.Err() != nil {
			return
		}
		slog.Warn("generation failed, abandoning turn", "speaker", t.SpeakerID, "err", err)
		o.gate.Reset()
		o.history.Reset()
		o.metrics.RecordTurn(ctx, "abandoned")
		return
	}
	o.metrics.RecordProviderRequest(ctx, "llm", "ok")

	o.history.AppendAssistant(reply)
	spoken, ended := o.gate.EndTurn(reply)
	if ended {
		o.history.Reset()
		o.metrics.RecordTurn(ctx, "completed")
		slog.Info("turn ended", "speaker", t.SpeakerID)
	}
	if spoken == "" {
		return
	}

	select {
	case o.responses <- spoken:
	case <-ctx.Done():
	}
}

// ─── Synthesis stage ──────────────────────────────────────────────────────────

func (o *Orchestrator) synthLoop(ctx context.Context) error {
	defer close(o.units)
	for {
		select {
		case <-ctx.Done():
			return nil
		case text, ok := <-o.responses:
			if !ok {
				return nil
			}
			sctx, end := observe.StageSpan(ctx, "tts", "")
			err := o.synth.Synthesize(sctx, text, o.units)
			end(err)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Warn("synthesis failed, abandoning turn", "err", err)
				// The reply may already have closed the turn; only an
				// active one is abandoned.
				if o.gate.State() == convo.StateActive {
					o.gate.Reset()
					o.metrics.RecordTurn(ctx, "abandoned")
				}
			}
		}
	}
}

// ─── Playback stage ───────────────────────────────────────────────────────────

func (o *Orchestrator) playLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-o.units:
			if !ok {
				return nil
			}
			if u.Final {
				slog.Debug("response playback complete", "units", u.Index)
				continue
			}
			o.play(ctx, u)
		}
	}
}

// play transcodes one unit to the connection's playback format, queues it
// and waits until the channel goes silent before returning, so units are
// heard strictly in order.
func (o *Orchestrator) play(ctx context.Context, u Unit) {
	ctx, end := observe.StageSpan(ctx, "playback", "")
	var playErr error
	defer func() { end(playErr) }()

	pcm := o.conv.Convert(u.Audio, audio.Format{SampleRate: u.SampleRate, Channels: u.Channels})
	if len(pcm) == 0 {
		return
	}

	o.metrics.PlaybackPending.Add(ctx, 1)
	defer o.metrics.PlaybackPending.Add(ctx, -1)

	if playErr = o.conn.Play(pcm); playErr != nil {
		slog.Warn("playback failed, dropping unit", "index", u.Index, "err", playErr)
		return
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	for o.conn.IsPlaying() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
