package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"newsriver/internal/handler/http/requestid"
)

// NewLogger builds the process logger from the environment. LOG_LEVEL
// sets the threshold (debug, info, warn, error; default info) and
// LOG_FORMAT selects the encoding: "text" for terminals, anything else
// gets JSON, which is what the log pipeline ingests.
//
// Both binaries call this once at startup and install the result with
// slog.SetDefault.
func NewLogger() *slog.Logger {
	level := levelFromEnv(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{
		Level: level,
		// Resolving the call site costs on every record and the worker
		// logs per article, so only debug runs pay for it.
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// levelFromEnv maps a LOG_LEVEL value to a slog level. Unknown values
// fall back to info rather than erroring; a broken logging knob must
// not stop either binary from starting.
func levelFromEnv(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID returns logger with the context's request ID attached
// as a request_id field, or logger unchanged when the context carries
// none.
func WithRequestID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	reqID := requestid.FromContext(ctx)
	if reqID == "" {
		return logger
	}
	return logger.With(slog.String("request_id", reqID))
}

type contextKey string

const loggerContextKey contextKey = "logger"

// WithLogger returns a context carrying logger. The admin middleware
// stores a request-tagged logger here and the dispatcher a job-tagged
// one, so the layers underneath log with the right correlation fields
// without threading a logger parameter through every call.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext returns the context's logger, or slog.Default() when the
// context carries none, as on startup paths and scraper tick loops.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
