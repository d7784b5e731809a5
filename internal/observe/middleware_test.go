package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestMiddleware builds a Middleware over a fresh Metrics instance with
// a manual reader, and installs an in-memory span exporter as the global
// tracer provider for the duration of the test.
func newTestMiddleware(t *testing.T) (func(http.Handler) http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return Middleware(m), reader, installTracerProvider(t)
}

func TestMiddleware_CorrelationHeaderMatchesContext(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)

	var inHandler string
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if len(inHandler) != 32 {
		t.Fatalf("handler saw correlation ID %q, want a 32-char trace ID", inHandler)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inHandler {
		t.Errorf("X-Correlation-ID = %q, handler saw %q", got, inHandler)
	}
}

func TestMiddleware_SpanCarriesMethodPathAndStatus(t *testing.T) {
	mw, _, exp := newTestMiddleware(t)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("response status = %d, want 404", rec.Code)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "GET /missing" {
		t.Errorf("span name = %q, want %q", s.Name, "GET /missing")
	}
	var status int64 = -1
	for _, a := range s.Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != 404 {
		t.Errorf("span status attribute = %d, want 404", status)
	}
}

func TestMiddleware_ImplicitStatusIs200(t *testing.T) {
	mw, _, exp := newTestMiddleware(t)

	// The handler writes a body without ever calling WriteHeader.
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

	for _, a := range exp.GetSpans()[0].Attributes {
		if a.Key == "http.response.status_code" && a.Value.AsInt64() != 200 {
			t.Errorf("span status attribute = %d, want 200", a.Value.AsInt64())
		}
	}
}

func TestMiddleware_RecordsRequestDuration(t *testing.T) {
	mw, reader, _ := newTestMiddleware(t)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/metrics", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "alvin.http.request.duration")
	if met == nil {
		t.Fatal("alvin.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("metric data = %T with no points, want a histogram", met.Data)
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	var method, path string
	for _, kv := range dp.Attributes.ToSlice() {
		switch kv.Key {
		case "method":
			method = kv.Value.AsString()
		case "path":
			path = kv.Value.AsString()
		}
	}
	if method != "GET" || path != "/metrics" {
		t.Errorf("attributes method=%q path=%q, want GET//metrics", method, path)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)
	const upstream = "4bf92f3577b34da6a3ce929d0e0e4736"

	var inHandler string
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
	}))
	req := httptest.NewRequest("GET", "/propagated", nil)
	req.Header.Set("traceparent", "00-"+upstream+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if inHandler != upstream {
		t.Errorf("handler correlation ID = %q, want the upstream trace ID", inHandler)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != upstream {
		t.Errorf("X-Correlation-ID = %q, want the upstream trace ID", got)
	}
}

func TestMiddleware_LogsCompletion(t *testing.T) {
	mw, _, _ := newTestMiddleware(t)
	buf := captureLog(t)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/logged", nil))

	out := buf.String()
	for _, want := range []string{"request completed", "path=/logged", "status=204", "trace_id="} {
		if !strings.Contains(out, want) {
			t.Errorf("completion log missing %q: %s", want, out)
		}
	}
}
