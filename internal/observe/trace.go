package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Alvin tracer.
const tracerName = "github.com/alvinbot/alvin"

// Tracer returns the package-level [trace.Tracer] for Alvin. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StageSpan starts a span for one pipeline stage working a single piece of
// turn work. speakerID may be empty for stages past the gate, where work is
// no longer tied to one speaker. The returned end function records the
// outcome and ends the span, so a stage wraps its provider call in two
// lines:
//
//	sctx, end := observe.StageSpan(ctx, "stt", chunk.SpeakerID)
//	res, err := provider.Transcribe(sctx, pcm)
//	end(err)
func StageSpan(ctx context.Context, stage, speakerID string) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{attribute.String("stage", stage)}
	if speakerID != "" {
		attrs = append(attrs, attribute.String("speaker_id", speakerID))
	}
	ctx, span := StartSpan(ctx, "pipeline."+stage, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// CorrelationID returns the trace ID of the active span in ctx, or the
// empty string when there is none. The trace ID doubles as the correlation
// identifier exposed to HTTP clients.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the active span in ctx. Without a span it is just the default logger.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
