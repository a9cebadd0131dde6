package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"newsriver/internal/repository"
)

// Consumer reads article id batches from the pending stream on behalf of
// the dispatcher. Entries abandoned by crashed consumers are claimed once
// they sit idle past ClaimMinIdle; entries delivered MaxDeliveries times
// without an ack are copied to the dead-letter stream and acked.
type Consumer struct {
	client  *redis.Client
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	// OnDeadLetter, when set, is called after an entry lands on the
	// dead-letter stream. Set it before the first Fetch; it must not
	// block.
	OnDeadLetter func(ctx context.Context, messageID string, deliveries int64)
}

var _ repository.ArticleConsumer = (*Consumer)(nil)

// NewConsumer creates a consumer over an established Redis client. Call
// EnsureGroup once before the first Fetch.
func NewConsumer(client *redis.Client, cfg Config, logger *slog.Logger, metrics *Metrics) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{client: client, cfg: cfg, logger: logger, metrics: metrics}
}

// EnsureGroup creates the consumer group, creating the stream alongside
// it when missing. A group that already exists is not an error.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("EnsureGroup: %w", err)
	}
	return nil
}

// Fetch returns the next batch of deliveries. Abandoned pending entries
// are claimed first, then new entries are read, blocking up to the
// configured window. Entries past their delivery budget and entries
// whose payload does not decode are diverted to the dead-letter stream
// instead of being returned. An empty result means nothing arrived.
func (c *Consumer) Fetch(ctx context.Context) ([]repository.QueueMessage, error) {
	claimed, deliveries, err := c.claimAbandoned(ctx)
	if err != nil {
		return nil, err
	}

	fresh, err := c.readNew(ctx)
	if err != nil {
		return nil, err
	}

	messages := make([]repository.QueueMessage, 0, len(claimed)+len(fresh))
	for _, raw := range claimed {
		msg, ok, err := c.decode(ctx, raw, deliveries[raw.ID])
		if err != nil {
			return nil, err
		}
		if ok {
			messages = append(messages, msg)
		}
	}
	for _, raw := range fresh {
		msg, ok, err := c.decode(ctx, raw, 1)
		if err != nil {
			return nil, err
		}
		if ok {
			messages = append(messages, msg)
		}
	}

	c.metrics.RecordConsumed(len(messages))
	return messages, nil
}

// Ack confirms deliveries, removing them from the group's pending list.
func (c *Consumer) Ack(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, messageIDs...).Err(); err != nil {
		return fmt.Errorf("Ack: %w", err)
	}

	c.metrics.RecordAcked(len(messageIDs))
	return nil
}

// claimAbandoned takes over pending entries whose consumer stopped
// acking them. A consumer's own entries come back through here too; the
// idle threshold is what spaces redeliveries apart. Entries past the
// delivery budget are dead-lettered instead of claimed.
func (c *Consumer) claimAbandoned(ctx context.Context) ([]redis.XMessage, map[string]int64, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Start:  "-",
		End:    "+",
		Count:  c.cfg.ReadCount,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("claimAbandoned: %w", err)
	}

	deliveries := make(map[string]int64, len(pending))
	stale := make([]string, 0, len(pending))
	for _, entry := range pending {
		if entry.Idle < c.cfg.ClaimMinIdle {
			continue
		}
		if entry.RetryCount >= c.cfg.MaxDeliveries {
			if err := c.deadLetterPending(ctx, entry); err != nil {
				return nil, nil, err
			}
			continue
		}
		// The claim below counts as one more delivery.
		deliveries[entry.ID] = entry.RetryCount + 1
		stale = append(stale, entry.ID)
	}
	if len(stale) == 0 {
		return nil, nil, nil
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.ClaimMinIdle,
		Messages: stale,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, fmt.Errorf("claimAbandoned: %w", err)
	}

	return claimed, deliveries, nil
}

// readNew reads entries nobody in the group has seen yet, blocking up to
// the configured window when the stream is drained.
func (c *Consumer) readNew(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.ReadCount,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("readNew: %w", err)
	}

	var messages []redis.XMessage
	for _, stream := range streams {
		messages = append(messages, stream.Messages...)
	}
	return messages, nil
}

// decode turns a raw stream entry into a queue message. Entries whose
// payload cannot be decoded can never succeed, so they are diverted to
// the dead-letter stream and reported as not ok.
func (c *Consumer) decode(ctx context.Context, raw redis.XMessage, deliveries int64) (repository.QueueMessage, bool, error) {
	ids, err := decodePayload(raw.Values)
	if err != nil {
		c.logger.Error("undecodable bus message",
			slog.String("message_id", raw.ID),
			slog.String("error", err.Error()))
		if derr := c.divert(ctx, raw.ID, raw.Values, deliveries); derr != nil {
			return repository.QueueMessage{}, false, derr
		}
		return repository.QueueMessage{}, false, nil
	}

	return repository.QueueMessage{ID: raw.ID, ArticleIDs: ids, Deliveries: deliveries}, true, nil
}

// deadLetterPending moves an entry that exhausted its delivery budget to
// the dead-letter stream. The original values are looked up first so the
// copy keeps the payload.
func (c *Consumer) deadLetterPending(ctx context.Context, entry redis.XPendingExt) error {
	entries, err := c.client.XRange(ctx, c.cfg.Stream, entry.ID, entry.ID).Result()
	if err != nil {
		return fmt.Errorf("deadLetterPending: %w", err)
	}

	values := map[string]interface{}{}
	if len(entries) > 0 {
		values = entries[0].Values
	}
	return c.divert(ctx, entry.ID, values, entry.RetryCount)
}

// divert copies an entry to the dead-letter stream, preserving the
// original payload, entry id and delivery count, then acks the original
// so the group stops redelivering it.
func (c *Consumer) divert(ctx context.Context, id string, values map[string]interface{}, deliveries int64) error {
	dead := map[string]interface{}{
		fieldOrigin:     id,
		fieldDeliveries: deliveries,
	}
	if payload, ok := values[fieldPayload]; ok {
		dead[fieldPayload] = payload
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.cfg.DeadStream, Values: dead}).Err(); err != nil {
		return fmt.Errorf("divert: %w", err)
	}
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		return fmt.Errorf("divert: %w", err)
	}

	c.metrics.RecordDead()
	c.logger.Warn("bus message moved to dead-letter stream",
		slog.String("message_id", id),
		slog.Int64("deliveries", deliveries))
	if c.OnDeadLetter != nil {
		c.OnDeadLetter(ctx, id, deliveries)
	}
	return nil
}
