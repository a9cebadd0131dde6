package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"newsriver/internal/repository"
)

// Publisher writes article id batches to the pending stream. It is safe
// for concurrent use by multiple scraper instances.
type Publisher struct {
	client  *redis.Client
	stream  string
	maxSize int
	logger  *slog.Logger
	metrics *Metrics
}

var _ repository.ArticlePublisher = (*Publisher)(nil)

// NewPublisher creates a publisher over an established Redis client.
// A nil metrics value disables recording.
func NewPublisher(client *redis.Client, cfg Config, logger *slog.Logger, metrics *Metrics) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:  client,
		stream:  cfg.Stream,
		maxSize: cfg.MaxBatchSize,
		logger:  logger,
		metrics: metrics,
	}
}

// PublishArticleIDs enqueues ids for enrichment, splitting them into
// sub-batches of at most MaxBatchSize ids per stream entry. All entries
// go out in one pipeline round trip. It returns the stream entry ids
// that were written; an empty id set writes nothing.
func (p *Publisher) PublishArticleIDs(ctx context.Context, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := p.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, (len(ids)+p.maxSize-1)/p.maxSize)
	for start := 0; start < len(ids); start += p.maxSize {
		end := start + p.maxSize
		if end > len(ids) {
			end = len(ids)
		}

		body, err := json.Marshal(envelope{ArticleIDs: ids[start:end]})
		if err != nil {
			return nil, fmt.Errorf("PublishArticleIDs: encode payload: %w", err)
		}

		cmds = append(cmds, pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]interface{}{fieldPayload: string(body)},
		}))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("PublishArticleIDs: %w", err)
	}

	messageIDs := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		id, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("PublishArticleIDs: %w", err)
		}
		messageIDs = append(messageIDs, id)
	}

	p.metrics.RecordPublished(len(messageIDs), len(ids))
	p.logger.Debug("published article ids",
		slog.Int("articles", len(ids)),
		slog.Int("messages", len(messageIDs)))

	return messageIDs, nil
}
