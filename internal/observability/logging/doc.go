// Package logging configures log/slog for both binaries and propagates
// correlation-tagged loggers through context.
//
// NewLogger reads LOG_LEVEL and LOG_FORMAT and builds the process
// logger. The context helpers carry a derived logger to the layers that
// need it: the admin middleware attaches a request_id-tagged logger to
// every request context, the dispatcher attaches a job_id-tagged one to
// every enrichment job, and FromContext hands either back (or the
// process default) wherever the work ends up running.
//
//	logger := logging.NewLogger()
//	slog.SetDefault(logger)
//
//	// somewhere under a dispatched job
//	logging.FromContext(ctx).Info("article enriched",
//	    slog.Int64("article_id", id))
package logging
