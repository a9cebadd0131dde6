// Package tracing instruments the admin HTTP surface with OpenTelemetry.
//
// The package stops at instrumentation: it creates server spans, joins
// incoming W3C trace context, and echoes the trace ID to callers. It never
// installs a tracer provider; that choice belongs to the deployment, and
// without one the global provider is a no-op and the middleware adds
// negligible overhead.
//
// Span names use the normalized admin routes, so traces group by
// operation (GET /status) rather than by feed URL.
package tracing
