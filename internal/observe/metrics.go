// Package observe provides application-wide observability primitives for
// Alvin: OpenTelemetry metrics, tracing helpers, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Alvin metrics.
const meterName = "github.com/alvinbot/alvin"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency per segment.
	TTSDuration metric.Float64Histogram

	// TTSFirstSegment tracks the time from response text to the first
	// playable audio segment of a turn.
	TTSFirstSegment metric.Float64Histogram

	// --- Counters ---

	// FramesDropped counts inbound payloads the capture layer discarded.
	// Use with attribute.String("reason", "malformed"|"oversized").
	FramesDropped metric.Int64Counter

	// ChunksFlushed counts speaker-buffer flushes. Use with
	// attribute.String("policy", ...).
	ChunksFlushed metric.Int64Counter

	// ChunksDropped counts flushed chunks discarded because the pipeline
	// queue was full.
	ChunksDropped metric.Int64Counter

	// TranscriptsDiscarded counts transcripts the turn gate rejected. Use
	// with attribute.String("reason", ...).
	TranscriptsDiscarded metric.Int64Counter

	// Turns counts conversation turns. Use with
	// attribute.String("status", "started"|"completed"|"abandoned").
	Turns metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("kind", "stt"|"llm"|"tts"), attribute.String("status", "ok"|"error")
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with
	// attribute.String("kind", "stt"|"llm"|"tts").
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// PlaybackPending tracks playback units queued but not yet played.
	PlaybackPending metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("alvin.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("alvin.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("alvin.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSFirstSegment, err = m.Float64Histogram("alvin.tts.first_segment",
		metric.WithDescription("Time from response text to first playable segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesDropped, err = m.Int64Counter("alvin.capture.frames_dropped",
		metric.WithDescription("Inbound payloads discarded by the capture layer, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ChunksFlushed, err = m.Int64Counter("alvin.capture.chunks_flushed",
		metric.WithDescription("Speaker buffer flushes, by flush policy."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("alvin.capture.chunks_dropped",
		metric.WithDescription("Flushed chunks discarded because the pipeline queue was full."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptsDiscarded, err = m.Int64Counter("alvin.gate.transcripts_discarded",
		metric.WithDescription("Transcripts rejected by the turn gate, by reason."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("alvin.turns",
		metric.WithDescription("Conversation turns, by status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("alvin.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("alvin.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("alvin.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackPending, err = m.Int64UpDownCounter("alvin.playback.pending",
		metric.WithDescription("Playback units queued but not yet played."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("alvin.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set. kind is the pipeline stage ("stt", "llm" or
// "tts"), status is "ok" or "error".
func (m *Metrics) RecordProviderRequest(ctx context.Context, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordTurn records a turn counter increment with the given status.
func (m *Metrics) RecordTurn(ctx context.Context, status string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
