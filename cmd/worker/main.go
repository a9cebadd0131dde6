package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"newsriver/internal/config"
	"newsriver/internal/infra/adapter/persistence/postgres"
	"newsriver/internal/infra/analyzer"
	"newsriver/internal/infra/blob"
	"newsriver/internal/infra/bus"
	"newsriver/internal/infra/db"
	"newsriver/internal/infra/embed"
	"newsriver/internal/infra/extract"
	"newsriver/internal/infra/fetcher"
	"newsriver/internal/infra/notifier"
	workerPkg "newsriver/internal/infra/worker"
	"newsriver/internal/observability/logging"
	"newsriver/internal/observability/metrics"
	"newsriver/internal/observability/slo"
	"newsriver/internal/repository"
	"newsriver/internal/resilience/circuitbreaker"
	"newsriver/internal/usecase/alert"
	"newsriver/internal/usecase/dispatch"
	"newsriver/internal/usecase/enrich"
	"newsriver/pkg/domainlimit"
	"newsriver/pkg/sleeper"
)

// Politeness limits applied to the scrape step of every enrichment batch.
const (
	scrapeMaxConcurrent  = 8
	scrapeGlobalCooldown = 1 * time.Second
	scrapeDomainCooldown = 5 * time.Second
)

// waitForMigrations blocks until the schema exists. The scheduler owns
// the migrations; a worker that starts first just waits its turn.
func waitForMigrations(logger *slog.Logger, db *sql.DB) {
	const probe = "SELECT 1 FROM articles LIMIT 1"
	for i := 0; i < 10; i++ {
		if _, err := db.Exec(probe); err == nil {
			return
		}
		logger.Info("waiting for migrations, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("migrations did not complete in time")
	os.Exit(1)
}

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

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("requeue_schedule", workerConfig.RequeueSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("alert_max_concurrent", workerConfig.AlertMaxConcurrent),
		slog.Duration("requeue_timeout", workerConfig.RequeueTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	alertService := setupAlerting(logger, workerConfig)

	// Start metrics HTTP server
	startMetricsServer(ctx, logger, alertService)

	// Start health check server
	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	// One Metrics instance covers both bus directions; registering twice
	// would panic on duplicate series.
	busMetrics := bus.NewMetrics(prometheus.DefaultRegisterer)

	consumer := bus.NewConsumer(redisClient, busCfg, logger, busMetrics)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Error("failed to create consumer group", slog.Any("error", err))
		os.Exit(1)
	}
	consumer.OnDeadLetter = func(ctx context.Context, messageID string, deliveries int64) {
		_ = alertService.Notify(ctx, &notifier.Alert{
			Severity:  notifier.SeverityCritical,
			Component: "queue",
			Title:     "message moved to dead-letter stream",
			Message:   fmt.Sprintf("entry %s diverted after %d deliveries", messageID, deliveries),
			At:        time.Now(),
		})
	}

	// Repository access runs behind the breaker so a dying database sheds
	// load instead of stacking up batches.
	breaker := circuitbreaker.NewDBCircuitBreaker(database)
	articles := postgres.NewArticleRepo(breaker)

	enrichService := setupEnrichment(ctx, logger, articles)

	dispatcher := dispatch.NewService(consumer, &enrichService, metrics.InstrumentSleeper(sleeper.Real{}))
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatcher stopped", slog.Any("error", err))
		}
	}()

	publisher := bus.NewPublisher(redisClient, busCfg, logger, busMetrics)
	reconciler := dispatch.NewReconciler(articles, publisher)
	requeueCron := startRequeueCron(logger, reconciler, workerConfig, workerMetrics, alertService)

	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("stream", busCfg.Stream),
		slog.String("group", busCfg.Group),
		slog.String("consumer", busCfg.Consumer))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down worker...")

	healthServer.SetReady(false)

	// Stop feeding new work, then wait out whatever is in flight. An
	// unfinished batch stays unacked and comes back via redelivery.
	cronCtx := requeueCron.Stop()
	cancel()

	select {
	case <-dispatcherDone:
	case <-time.After(30 * time.Second):
		logger.Warn("dispatcher did not stop in time")
	}
	select {
	case <-cronCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("requeue sweep still running at shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := alertService.Shutdown(shutdownCtx); err != nil {
		logger.Error("alert service shutdown incomplete", slog.Any("error", err))
	}
	logger.Info("worker stopped")
}

// initLogger initializes the shared structured logger.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database connection and waits for migrations to complete.
func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	waitForMigrations(logger, database)
	return database
}

// initBus connects to Redis and verifies the connection before the
// consumer group is touched.
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

// setupAlerting builds the alert fan-out service over the configured
// webhook channels. Disabled channels stay in the list so
// /health/channels reports them.
func setupAlerting(logger *slog.Logger, cfg *workerPkg.WorkerConfig) alert.Service {
	discordConfig := loadDiscordConfig(logger)
	slackConfig := loadSlackConfig(logger)

	channels := []alert.Channel{
		alert.NewDiscordChannel(discordConfig),
		alert.NewSlackChannel(slackConfig),
	}

	service := alert.NewService(channels, cfg.AlertMaxConcurrent)
	logger.Info("alert service initialized",
		slog.Bool("discord", discordConfig.Enabled),
		slog.Bool("slack", slackConfig.Enabled),
		slog.Int("max_concurrent", cfg.AlertMaxConcurrent))
	return service
}

// setupEnrichment wires every stage of the enrichment pipeline. All
// dependencies are required: a worker that cannot scrape, analyze, embed,
// or store content has no business consuming the queue, so any missing
// piece is fatal.
func setupEnrichment(ctx context.Context, logger *slog.Logger, articles repository.ArticleRepository) enrich.Service {
	fetchConfig, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load fetch configuration", slog.Any("error", err))
		os.Exit(1)
	}

	renderConfig, err := fetcher.LoadRenderConfigFromEnv()
	if err != nil {
		logger.Error("failed to load renderer configuration", slog.Any("error", err))
		os.Exit(1)
	}

	embedConfig, err := embed.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load embeddings configuration", slog.Any("error", err))
		os.Exit(1)
	}
	embedder := embed.NewClient(embedConfig)

	blobConfig, err := blob.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load blob store configuration", slog.Any("error", err))
		os.Exit(1)
	}
	blobs, err := blob.NewStore(ctx, blobConfig, logger, blob.NewMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		logger.Error("failed to create blob store", slog.Any("error", err))
		os.Exit(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := embedder.Ping(pingCtx); err != nil {
		logger.Error("embeddings service unreachable", slog.Any("error", err))
		os.Exit(1)
	}
	if err := blobs.Ping(pingCtx); err != nil {
		logger.Error("blob store unreachable", slog.Any("error", err))
		os.Exit(1)
	}

	policy, err := config.LoadScrapePolicy()
	if err != nil {
		logger.Error("failed to load scrape policy", slog.Any("error", err))
		os.Exit(1)
	}

	return enrich.NewService(
		articles,
		fetcher.NewPlainFetcher(fetchConfig),
		fetcher.NewRenderer(renderConfig),
		extract.New(),
		createAnalyzer(logger),
		embedder,
		blobs,
		policy,
		metrics.InstrumentSleeper(sleeper.Real{}),
		domainlimit.Config{
			MaxConcurrent:  scrapeMaxConcurrent,
			GlobalCooldown: scrapeGlobalCooldown,
			DomainCooldown: scrapeDomainCooldown,
		},
	)
}

// createAnalyzer creates an analyzer based on the ANALYZER_TYPE environment variable.
func createAnalyzer(logger *slog.Logger) enrich.Analyzer {
	analyzerType := os.Getenv("ANALYZER_TYPE")
	if analyzerType == "" {
		analyzerType = "claude"
	}

	switch analyzerType {
	case "claude":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			logger.Error("ANTHROPIC_API_KEY is required when ANALYZER_TYPE=claude")
			os.Exit(1)
		}
		logger.Info("Using Claude API for analysis", slog.String("type", "claude"))
		return analyzer.NewClaude(apiKey)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			logger.Error("OPENAI_API_KEY is required when ANALYZER_TYPE=openai")
			os.Exit(1)
		}
		config, err := analyzer.LoadOpenAIConfig()
		if err != nil {
			logger.Error("Failed to load OpenAI configuration", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Using OpenAI API for analysis",
			slog.String("type", "openai"),
			slog.String("model", config.GetModel()))
		return analyzer.NewOpenAI(apiKey, config)
	default:
		logger.Error("Invalid ANALYZER_TYPE",
			slog.String("type", analyzerType),
			slog.String("expected", "openai or claude"))
		os.Exit(1)
		return nil
	}
}

// loadDiscordConfig loads Discord configuration from environment variables.
//
// Environment variables:
//   - DISCORD_ENABLED: Boolean flag to enable Discord alerts (default: false)
//   - DISCORD_WEBHOOK_URL: Discord webhook URL (required if enabled)
//
// Returns:
//   - notifier.DiscordConfig: Configuration with validation applied
func loadDiscordConfig(logger *slog.Logger) notifier.DiscordConfig {
	enabled := os.Getenv("DISCORD_ENABLED") == "true"
	webhookURL := os.Getenv("DISCORD_WEBHOOK_URL")

	if !enabled {
		return notifier.DiscordConfig{Enabled: false}
	}

	// Validate webhook URL format
	if webhookURL == "" {
		logger.Warn("Discord webhook URL is empty, disabling alerts")
		return notifier.DiscordConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("Invalid Discord webhook URL format, disabling alerts", slog.Any("error", err))
		return notifier.DiscordConfig{Enabled: false}
	}

	if u.Scheme != "https" {
		logger.Warn("Discord webhook URL must use HTTPS, disabling alerts")
		return notifier.DiscordConfig{Enabled: false}
	}

	if u.Host != "discord.com" {
		logger.Warn("Invalid Discord webhook host, disabling alerts", slog.String("host", u.Host))
		return notifier.DiscordConfig{Enabled: false}
	}

	if !strings.HasPrefix(u.Path, "/api/webhooks/") {
		logger.Warn("Invalid Discord webhook path, disabling alerts", slog.String("path", u.Path))
		return notifier.DiscordConfig{Enabled: false}
	}

	return notifier.DiscordConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}

// loadSlackConfig loads Slack configuration from environment variables.
//
// Environment variables:
//   - SLACK_ENABLED: Boolean flag to enable Slack alerts (default: false)
//   - SLACK_WEBHOOK_URL: Slack webhook URL (required if enabled)
//
// Returns:
//   - notifier.SlackConfig: Configuration with validation applied
func loadSlackConfig(logger *slog.Logger) notifier.SlackConfig {
	enabled := os.Getenv("SLACK_ENABLED") == "true"
	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")

	if !enabled {
		return notifier.SlackConfig{Enabled: false}
	}

	// Validate webhook URL format
	if webhookURL == "" {
		logger.Warn("Slack webhook URL is empty, disabling alerts")
		return notifier.SlackConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("Invalid Slack webhook URL format, disabling alerts", slog.Any("error", err))
		return notifier.SlackConfig{Enabled: false}
	}

	if u.Scheme != "https" {
		logger.Warn("Slack webhook URL must use HTTPS, disabling alerts")
		return notifier.SlackConfig{Enabled: false}
	}

	if u.Host != "hooks.slack.com" {
		logger.Warn("Invalid Slack webhook host, disabling alerts", slog.String("host", u.Host))
		return notifier.SlackConfig{Enabled: false}
	}

	if !strings.HasPrefix(u.Path, "/services/") {
		logger.Warn("Invalid Slack webhook path, disabling alerts", slog.String("path", u.Path))
		return notifier.SlackConfig{Enabled: false}
	}

	return notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}

// startRequeueCron schedules the periodic requeue sweep and returns the
// running scheduler so main can drain it at shutdown.
func startRequeueCron(logger *slog.Logger, reconciler dispatch.Reconciler, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics, alerts alert.Service) *cron.Cron {
	// Load timezone
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cfg.RequeueSchedule, func() {
		runRequeueJob(logger, reconciler, cfg, metrics, alerts)
	})
	if err != nil {
		logger.Error("failed to schedule requeue sweep", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	logger.Info("requeue sweep scheduled",
		slog.String("schedule", cfg.RequeueSchedule),
		slog.String("timezone", cfg.Timezone))
	return c
}

// runRequeueJob executes a single requeue sweep with timeout, metrics,
// and alerting on failure.
func runRequeueJob(logger *slog.Logger, reconciler dispatch.Reconciler, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics, alerts alert.Service) {
	startTime := time.Now()
	logger.Info("requeue sweep started")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequeueTimeout)
	defer cancel()

	count, err := reconciler.Requeue(ctx)
	if err != nil {
		logger.Error("requeue sweep failed", slog.Any("error", err))
		metrics.RecordJobRun("failure")
		metrics.RecordJobDuration(time.Since(startTime).Seconds())
		_ = alerts.Notify(ctx, &notifier.Alert{
			Severity:  notifier.SeverityWarning,
			Component: "requeue",
			Title:     "requeue sweep failed",
			Message:   err.Error(),
			At:        time.Now(),
		})
		return
	}

	// Record metrics
	metrics.RecordJobRun("success")
	metrics.RecordJobDuration(time.Since(startTime).Seconds())
	metrics.RecordArticlesRequeued(count)
	metrics.RecordLastSuccess()
	slo.UpdateRequeueBacklog(count)

	logger.Info("requeue sweep completed",
		slog.Int("articles", count),
		slog.Duration("duration", time.Since(startTime)))
}
