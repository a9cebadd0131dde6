// Package bus moves article id batches between the scheduler and the
// enrichment worker over Redis Streams. The scheduler publishes the ids
// of freshly inserted articles; the worker consumes them through a
// consumer group so deliveries survive crashes and restarts.
//
// Delivery is at least once. A consumer that crashes between fetch and
// ack leaves its entries pending; another consumer claims them once they
// sit idle long enough. Entries that keep failing past their delivery
// budget are copied to the dead-letter stream and acknowledged, so one
// poisoned message cannot wedge the whole group.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Stream entry field names.
const (
	// fieldPayload holds the JSON queue message.
	fieldPayload = "payload"
	// fieldOrigin holds the original entry id on dead-letter copies.
	fieldOrigin = "origin_id"
	// fieldDeliveries holds the delivery count at dead-letter time.
	fieldDeliveries = "deliveries"
)

// envelope is the wire shape of a queue message.
type envelope struct {
	ArticleIDs []int64 `json:"articles_id"`
}

// Dial connects to Redis using a URL of the form
// redis://[user:pass@]host:port/db. The returned client is safe for
// concurrent use; the caller owns closing it.
func Dial(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("Dial: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Ping verifies the Redis connection. Readiness probes call this.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	return nil
}

// decodePayload extracts the article ids from a stream entry's values.
func decodePayload(values map[string]interface{}) ([]int64, error) {
	raw, ok := values[fieldPayload].(string)
	if !ok {
		return nil, fmt.Errorf("decodePayload: entry has no %q field", fieldPayload)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decodePayload: %w", err)
	}
	return env.ArticleIDs, nil
}
