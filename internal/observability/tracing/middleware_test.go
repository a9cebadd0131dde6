package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

// setupExporter installs an in-memory exporter and rebinds the package
// tracer to it. Returns the exporter and the provider for flushing.
func setupExporter(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("newsriver")
	t.Cleanup(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		tracer = otel.Tracer("newsriver")
	})
	return exporter, tp
}

func TestMiddleware_CreatesSpan(t *testing.T) {
	exporter, tp := setupExporter(t)

	// Create test handler
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Wrap with tracing middleware
	handler := Middleware(testHandler)

	// Status requests carry the feed URL in the query string
	req := httptest.NewRequest("GET", "/status?url=https://example.com/rss", nil)
	rr := httptest.NewRecorder()

	// Execute request
	handler.ServeHTTP(rr, req)

	// Force flush spans using background context
	ctx := context.Background()
	_ = tp.ForceFlush(ctx)

	// Verify span was created
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	// Span name must use the normalized route, not the raw target
	span := spans[0]
	if span.Name != "GET /status" {
		t.Errorf("expected span name 'GET /status', got '%s'", span.Name)
	}

	// Verify span attributes
	want := map[string]string{
		"http.method": "GET",
		"http.route":  "/status",
		"http.target": "/status?url=https://example.com/rss",
	}
	found := make(map[string]bool)
	for _, attr := range span.Attributes {
		key := string(attr.Key)
		if expected, ok := want[key]; ok {
			found[key] = true
			if attr.Value.AsString() != expected {
				t.Errorf("expected %s=%s, got %s", key, expected, attr.Value.AsString())
			}
		}
		if key == "http.status_code" {
			found[key] = true
			if attr.Value.AsInt64() != 200 {
				t.Errorf("expected http.status_code=200, got %d", attr.Value.AsInt64())
			}
		}
	}
	for _, key := range []string{"http.method", "http.route", "http.target", "http.status_code"} {
		if !found[key] {
			t.Errorf("%s attribute not found", key)
		}
	}
}

func TestMiddleware_SpanNamesShareOneRoute(t *testing.T) {
	exporter, tp := setupExporter(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Different feeds, unknown paths, all through the same middleware
	targets := []string{
		"/status?url=https://example.com/rss",
		"/status?url=https://news.example.org/feed.xml",
		"/wp-login.php",
	}
	for _, target := range targets {
		req := httptest.NewRequest("GET", target, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	_ = tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}

	// Both status requests share one name; the probe lands in the bucket
	if spans[0].Name != "GET /status" || spans[1].Name != "GET /status" {
		t.Errorf("expected both status spans named 'GET /status', got '%s' and '%s'",
			spans[0].Name, spans[1].Name)
	}
	if spans[2].Name != "GET /unmatched" {
		t.Errorf("expected probe span named 'GET /unmatched', got '%s'", spans[2].Name)
	}
}

func TestMiddleware_AddsTraceIDToResponse(t *testing.T) {
	_, _ = setupExporter(t)

	// Create test handler
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Wrap with tracing middleware
	handler := Middleware(testHandler)

	// Create test request
	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()

	// Execute request
	handler.ServeHTTP(rr, req)

	// Verify X-Trace-Id header is present
	traceID := rr.Header().Get("X-Trace-Id")
	if traceID == "" {
		t.Error("X-Trace-Id header not found in response")
	}

	// Verify trace ID format (32 hex characters)
	if len(traceID) != 32 {
		t.Errorf("expected trace ID length 32, got %d", len(traceID))
	}
}

func TestMiddleware_NoTraceIDHeaderWithoutProvider(t *testing.T) {
	// Under a no-op provider spans carry no trace ID, and the header must
	// stay absent rather than echo zeros.
	otel.SetTracerProvider(noop.NewTracerProvider())
	tracer = otel.Tracer("newsriver")
	t.Cleanup(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		tracer = otel.Tracer("newsriver")
	})

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Trace-Id"); got != "" {
		t.Errorf("expected no X-Trace-Id header, got %q", got)
	}
}

func TestMiddleware_PropagatesTraceContext(t *testing.T) {
	exporter, tp := setupExporter(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	})

	// Create test handler
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	// Wrap with tracing middleware
	handler := Middleware(testHandler)

	// A trigger fired from another traced service carries its context
	req := httptest.NewRequest("POST", "/trigger?url=https://example.com/rss", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rr := httptest.NewRecorder()

	// Execute request
	handler.ServeHTTP(rr, req)

	// Force flush spans using background context
	ctx := context.Background()
	_ = tp.ForceFlush(ctx)

	// Verify span was created with propagated trace context
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	// Verify trace ID matches the propagated one
	span := spans[0]
	expectedTraceID := "4bf92f3577b34da6a3ce929d0e0e4736"
	actualTraceID := span.SpanContext.TraceID().String()
	if actualTraceID != expectedTraceID {
		t.Errorf("expected trace ID %s, got %s", expectedTraceID, actualTraceID)
	}
}

func TestMiddleware_MarksErrorSpansFor5xx(t *testing.T) {
	exporter, tp := setupExporter(t)

	// Create test handler that returns 500
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	// Wrap with tracing middleware
	handler := Middleware(testHandler)

	// Create test request
	req := httptest.NewRequest("POST", "/trigger?url=https://example.com/rss", nil)
	rr := httptest.NewRecorder()

	// Execute request
	handler.ServeHTTP(rr, req)

	// Force flush spans using background context
	ctx := context.Background()
	_ = tp.ForceFlush(ctx)

	// Verify span has error attribute
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	foundError := false

	for _, attr := range span.Attributes {
		if attr.Key == "error" && attr.Value.AsBool() {
			foundError = true
			break
		}
	}

	if !foundError {
		t.Error("expected error attribute for 5xx response")
	}
}

func TestMiddleware_NoErrorAttributeFor4xx(t *testing.T) {
	exporter, tp := setupExporter(t)

	// Create test handler that returns 404 (unknown scraper instance)
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	// Wrap with tracing middleware
	handler := Middleware(testHandler)

	// Create test request
	req := httptest.NewRequest("GET", "/status?url=https://example.com/gone", nil)
	rr := httptest.NewRecorder()

	// Execute request
	handler.ServeHTTP(rr, req)

	// Force flush spans using background context
	ctx := context.Background()
	_ = tp.ForceFlush(ctx)

	// Verify span does NOT have error attribute
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	for _, attr := range span.Attributes {
		if attr.Key == "error" {
			t.Error("unexpected error attribute for 4xx response")
		}
	}
}

func TestStatusRecorder_CapturesStatusCode(t *testing.T) {
	w := httptest.NewRecorder()
	rec := newStatusRecorder(w)

	// Default status should be 200
	if rec.statusCode != http.StatusOK {
		t.Errorf("expected default status code 200, got %d", rec.statusCode)
	}

	// Write a custom status code
	rec.WriteHeader(http.StatusCreated)

	if rec.statusCode != http.StatusCreated {
		t.Errorf("expected status code 201, got %d", rec.statusCode)
	}
}
