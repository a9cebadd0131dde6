package bus

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Stream names shared by the scheduler and the worker.
const (
	// DefaultStream carries batches of article ids awaiting enrichment.
	DefaultStream = "articles:pending"
	// DefaultDeadStream retains messages that exhausted their delivery
	// budget, together with the original payload and delivery count.
	DefaultDeadStream = "articles:dead"
)

// Config holds the Redis Streams settings shared by the publisher and
// the consumer.
type Config struct {
	// URL is the Redis connection URL.
	// Default: "redis://localhost:6379/0"
	URL string

	// Stream is the stream key article id batches are published to.
	// Default: "articles:pending"
	Stream string

	// DeadStream is the stream key poisoned messages are copied to.
	// Default: "articles:dead"
	DeadStream string

	// Group is the consumer group name shared by the worker fleet.
	// Default: "enrichment"
	Group string

	// Consumer is this process's name within the group. Must be unique
	// per running worker or pending entries are misattributed.
	// Default: "<hostname>-<pid>"
	Consumer string

	// MaxBatchSize caps how many article ids go into one stream entry.
	// Default: 100
	MaxBatchSize int

	// ReadCount is how many entries a single Fetch asks for.
	// Default: 10
	ReadCount int64

	// Block is how long Fetch waits for new entries before returning
	// empty.
	// Default: 5s
	Block time.Duration

	// ClaimMinIdle is how long a pending entry must sit idle before
	// another consumer may claim it.
	// Default: 30s
	ClaimMinIdle time.Duration

	// MaxDeliveries is the delivery budget. Entries delivered this many
	// times without an ack are moved to DeadStream.
	// Default: 5
	MaxDeliveries int64
}

// DefaultConfig returns the production defaults for the bus.
func DefaultConfig() Config {
	return Config{
		URL:           "redis://localhost:6379/0",
		Stream:        DefaultStream,
		DeadStream:    DefaultDeadStream,
		Group:         "enrichment",
		Consumer:      defaultConsumerName(),
		MaxBatchSize:  100,
		ReadCount:     10,
		Block:         5 * time.Second,
		ClaimMinIdle:  30 * time.Second,
		MaxDeliveries: 5,
	}
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Validate checks the configuration for values that would be unsafe or
// nonsensical at runtime.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url must not be empty")
	}

	if c.Stream == "" || c.DeadStream == "" {
		return fmt.Errorf("stream names must not be empty")
	}
	if c.Stream == c.DeadStream {
		return fmt.Errorf("stream and dead stream must differ, both are %q", c.Stream)
	}

	if c.Group == "" || c.Consumer == "" {
		return fmt.Errorf("group and consumer names must not be empty")
	}

	if c.MaxBatchSize < 1 || c.MaxBatchSize > 100 {
		return fmt.Errorf("max batch size must be between 1 and 100, got %d", c.MaxBatchSize)
	}

	if c.ReadCount < 1 {
		return fmt.Errorf("read count must be positive, got %d", c.ReadCount)
	}

	if c.Block <= 0 {
		return fmt.Errorf("block must be positive, got %v", c.Block)
	}

	if c.ClaimMinIdle < 0 {
		return fmt.Errorf("claim min idle must not be negative, got %v", c.ClaimMinIdle)
	}

	if c.MaxDeliveries < 1 {
		return fmt.Errorf("max deliveries must be positive, got %d", c.MaxDeliveries)
	}

	return nil
}

// LoadConfigFromEnv loads the bus configuration from environment
// variables, falling back to defaults for anything unset. The loaded
// configuration is validated before it is returned.
//
// Environment variables:
//   - REDIS_URL: connection URL (default: redis://localhost:6379/0)
//   - BUS_STREAM: pending stream key (default: articles:pending)
//   - BUS_DEAD_STREAM: dead-letter stream key (default: articles:dead)
//   - BUS_GROUP: consumer group name (default: enrichment)
//   - BUS_CONSUMER: consumer name (default: <hostname>-<pid>)
//   - BUS_MAX_BATCH_SIZE: ids per stream entry, 1-100 (default: 100)
//   - BUS_READ_COUNT: entries per fetch (default: 10)
//   - BUS_BLOCK: duration string, e.g. "5s" (default: 5s)
//   - BUS_CLAIM_MIN_IDLE: duration string, e.g. "30s" (default: 30s)
//   - BUS_MAX_DELIVERIES: delivery budget (default: 5)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if val := os.Getenv("REDIS_URL"); val != "" {
		cfg.URL = val
	}

	if val := os.Getenv("BUS_STREAM"); val != "" {
		cfg.Stream = val
	}

	if val := os.Getenv("BUS_DEAD_STREAM"); val != "" {
		cfg.DeadStream = val
	}

	if val := os.Getenv("BUS_GROUP"); val != "" {
		cfg.Group = val
	}

	if val := os.Getenv("BUS_CONSUMER"); val != "" {
		cfg.Consumer = val
	}

	if val := os.Getenv("BUS_MAX_BATCH_SIZE"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid BUS_MAX_BATCH_SIZE: %v", err)
		}
		cfg.MaxBatchSize = parsed
	}

	if val := os.Getenv("BUS_READ_COUNT"); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid BUS_READ_COUNT: %v", err)
		}
		cfg.ReadCount = parsed
	}

	if val := os.Getenv("BUS_BLOCK"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid BUS_BLOCK: %v (expected format: '5s', '1m')", err)
		}
		cfg.Block = parsed
	}

	if val := os.Getenv("BUS_CLAIM_MIN_IDLE"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid BUS_CLAIM_MIN_IDLE: %v", err)
		}
		cfg.ClaimMinIdle = parsed
	}

	if val := os.Getenv("BUS_MAX_DELIVERIES"); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid BUS_MAX_DELIVERIES: %v", err)
		}
		cfg.MaxDeliveries = parsed
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
