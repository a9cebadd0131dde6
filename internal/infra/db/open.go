// Package db opens the shared Postgres pool. Both binaries call Open at
// startup; repository access then goes through the circuit breaker, not
// through this package.
package db

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"time"

	"newsriver/internal/pkg/config"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ConnectionConfig holds database connection pool configuration.
type ConnectionConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConnectionConfig returns pool sizing that suits both binaries:
// the scheduler's many small tick transactions and the worker's batch
// commits stay well under 25 connections in production.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// Open connects to DATABASE_URL and applies the pool settings. Startup
// is the one place where dying beats limping, so failures are fatal.
func Open() *sql.DB {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal(err)
	}

	cfg := poolConfigFromEnv()
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	slog.Info("database connection pool configured",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", cfg.ConnMaxIdleTime))

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	slog.Info("database connection established successfully")
	return db
}

// poolConfigFromEnv overlays the defaults with DB_MAX_OPEN_CONNS,
// DB_MAX_IDLE_CONNS, DB_CONN_MAX_LIFETIME, and DB_CONN_MAX_IDLE_TIME.
// Unparseable or out-of-range values fall back to the defaults with a
// logged warning; pool sizing is never worth refusing to start over.
func poolConfigFromEnv() ConnectionConfig {
	cfg := DefaultConnectionConfig()

	result := config.LoadEnvInt("DB_MAX_OPEN_CONNS", cfg.MaxOpenConns, func(v int) error {
		return config.ValidateIntRange(v, 1, 500)
	})
	cfg.MaxOpenConns = result.Value.(int)
	warnAll(result, "DB_MAX_OPEN_CONNS")

	result = config.LoadEnvInt("DB_MAX_IDLE_CONNS", cfg.MaxIdleConns, func(v int) error {
		return config.ValidateIntRange(v, 1, 500)
	})
	cfg.MaxIdleConns = result.Value.(int)
	warnAll(result, "DB_MAX_IDLE_CONNS")

	result = config.LoadEnvDuration("DB_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime, config.ValidatePositiveDuration)
	cfg.ConnMaxLifetime = result.Value.(time.Duration)
	warnAll(result, "DB_CONN_MAX_LIFETIME")

	result = config.LoadEnvDuration("DB_CONN_MAX_IDLE_TIME", cfg.ConnMaxIdleTime, config.ValidatePositiveDuration)
	cfg.ConnMaxIdleTime = result.Value.(time.Duration)
	warnAll(result, "DB_CONN_MAX_IDLE_TIME")

	return cfg
}

func warnAll(result config.ConfigLoadResult, field string) {
	for _, warning := range result.Warnings {
		slog.Warn("pool configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", warning))
	}
}
