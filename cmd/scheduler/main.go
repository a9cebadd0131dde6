package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"newsriver/internal/infra/adapter/persistence/postgres"
	"newsriver/internal/infra/bus"
	"newsriver/internal/infra/db"
	"newsriver/internal/infra/feed"
	"newsriver/internal/observability/logging"
	"newsriver/internal/observability/metrics"
	"newsriver/internal/observability/tracing"
	"newsriver/internal/resilience/circuitbreaker"
	"newsriver/internal/scraper"
	"newsriver/pkg/sleeper"

	hhttp "newsriver/internal/handler/http"
	"newsriver/internal/handler/http/requestid"
	hscraper "newsriver/internal/handler/http/scraper"
)

func main() {
	logger := initLogger()
	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	redisClient, busCfg := initBus(logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}()

	version := getVersion()
	components := setupScheduler(logger, database, redisClient, busCfg, version)

	runScheduler(logger, components, version)
}

// initLogger initializes the shared structured logger.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database connection and runs migrations.
func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// initBus connects to Redis and verifies the connection before any
// instance gets a chance to publish.
func initBus(logger *slog.Logger) (*redis.Client, bus.Config) {
	busCfg, err := bus.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load bus configuration", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := bus.Dial(busCfg.URL)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bus.Ping(ctx, client); err != nil {
		logger.Error("redis ping failed", slog.Any("error", err))
		os.Exit(1)
	}

	return client, busCfg
}

// getVersion returns the application version from environment or default.
func getVersion() string {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	return version
}

// getPort returns the admin listen port from environment or default.
func getPort() string {
	port := os.Getenv("SCHEDULER_PORT")
	if port == "" {
		port = "8090"
	}
	return ":" + port
}

// SchedulerComponents holds everything runScheduler needs to serve and
// shut down.
type SchedulerComponents struct {
	Handler  http.Handler
	Manager  *scraper.Manager
	Restored *atomic.Bool
}

// setupScheduler wires repositories, the bus publisher, and the scraper
// manager, and returns the admin HTTP surface.
func setupScheduler(logger *slog.Logger, database *sql.DB, redisClient *redis.Client, busCfg bus.Config, version string) *SchedulerComponents {
	// Repository queries run behind the breaker so a dying database sheds
	// load instead of piling up ticks.
	breaker := circuitbreaker.NewDBCircuitBreaker(database)

	publisher := bus.NewPublisher(redisClient, busCfg, logger, bus.NewMetrics(prometheus.DefaultRegisterer))

	manager := scraper.NewManager(scraper.Deps{
		States:    postgres.NewScraperStateRepo(breaker),
		Sources:   postgres.NewSourceRepo(breaker),
		Articles:  postgres.NewArticleRepo(breaker),
		Publisher: publisher,
		Fetcher:   feed.NewFetcher(nil),
		Parser:    feed.NewParser(),
		Sleeper:   metrics.InstrumentSleeper(sleeper.Real{}),
	})

	busPinger := hhttp.PingerFunc(func(ctx context.Context) error {
		return bus.Ping(ctx, redisClient)
	})

	restored := &atomic.Bool{}

	mux := http.NewServeMux()
	hscraper.Register(mux, manager)

	// ヘルスチェックエンドポイント
	mux.Handle("/health", &hhttp.HealthHandler{DB: database, Bus: busPinger, Scrapers: manager, Version: version})
	mux.Handle("/ready", &hhttp.ReadyHandler{DB: database, Bus: busPinger, Restored: restored})
	mux.Handle("/live", &hhttp.LiveHandler{})
	mux.Handle("/metrics", hhttp.MetricsHandler())

	return &SchedulerComponents{
		Handler:  applyMiddleware(logger, mux),
		Manager:  manager,
		Restored: restored,
	}
}

// applyMiddleware wraps the admin mux with the shared middleware chain.
// Order: Request ID → Rate Limit → Recovery → Logging → Timeout →
// Body Limit → Tracing → Metrics.
func applyMiddleware(logger *slog.Logger, handler http.Handler) http.Handler {
	// The admin surface is internal; a single sliding-window limiter per
	// client IP is enough protection.
	limiter := hhttp.NewRateLimiter(120, 1*time.Minute)

	middlewareChain := handler

	// Apply in reverse order (innermost to outermost)
	middlewareChain = hhttp.MetricsMiddleware(middlewareChain)
	middlewareChain = tracing.Middleware(middlewareChain)
	middlewareChain = hhttp.LimitRequestBody(1 << 20)(middlewareChain) // 1MB limit
	// Timeout sits inside Recover so a handler panic still reaches it.
	middlewareChain = hhttp.Timeout(30 * time.Second)(middlewareChain)
	middlewareChain = hhttp.Logging(logger)(middlewareChain)
	middlewareChain = hhttp.Recover(logger)(middlewareChain)
	middlewareChain = limiter.Limit(middlewareChain)
	middlewareChain = requestid.Middleware(middlewareChain)

	return middlewareChain
}

// runScheduler starts the admin server, restores persisted scraper
// instances, and handles graceful shutdown.
func runScheduler(logger *slog.Logger, components *SchedulerComponents, version string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := getPort()
	srv := &http.Server{
		Addr:              addr,
		Handler:           components.Handler,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("scheduler admin server starting",
			slog.String("addr", addr),
			slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Restore runs after the server is up so liveness answers during a
	// long restore; readiness stays 503 until the flag flips.
	go func() {
		count, err := components.Manager.Restore(ctx)
		if err != nil {
			logger.Error("scraper restoration failed", slog.Any("error", err))
			os.Exit(1)
		}
		components.Restored.Store(true)
		logger.Info("scheduler ready", slog.Int("scrapers", count))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down scheduler...")

	cancel()

	// In-flight ticks get a grace window to finish their publish step.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := components.Manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("scraper shutdown incomplete", slog.Any("error", err))
	}

	srvCtx, srvCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer srvCancel()
	if err := srv.Shutdown(srvCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	logger.Info("scheduler stopped")
}
