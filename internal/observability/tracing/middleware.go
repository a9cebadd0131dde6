package tracing

import (
	"net/http"

	"newsriver/internal/handler/http/pathutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

// newStatusRecorder creates a statusRecorder with default status code 200.
func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code and calls the underlying ResponseWriter.
func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Middleware wraps each admin request in a server span. Incoming W3C trace
// context is honored, so a trigger fired from another traced service joins
// its caller's trace, and the trace ID is echoed in the X-Trace-Id
// response header for client-side correlation.
//
// Span names use the normalized route, not the raw path: the admin routes
// address scraper instances through the url query parameter, and a span
// name per feed URL would drown any trace search. The raw target survives
// as an attribute.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(
			r.Context(),
			propagation.HeaderCarrier(r.Header),
		)

		route := pathutil.NormalizePath(r.URL.Path)
		ctx, span := tracer.Start(ctx, r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		// No header under a no-op provider; an all-zero trace ID would
		// only mislead whoever tries to chase it.
		if sc := span.SpanContext(); sc.HasTraceID() {
			w.Header().Set("X-Trace-Id", sc.TraceID().String())
		}

		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", r.URL.RequestURI()),
			attribute.Int("http.status_code", rec.statusCode),
		)

		// Mark span as error if status code is 5xx
		if rec.statusCode >= 500 {
			span.SetAttributes(attribute.Bool("error", true))
		}
	})
}
