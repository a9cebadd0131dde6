// Package dispatch connects the bus to the enrichment worker. The consume
// loop hands every claimed batch of article ids to one enrichment job and
// acknowledges the batch only after the job returns, so a crashed or
// failed job falls back on redelivery. The requeue reconciler closes the
// remaining gap by re-publishing rows that slipped past redelivery.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsriver/internal/observability/logging"
	"newsriver/internal/repository"
	"newsriver/internal/usecase/enrich"
	"newsriver/pkg/sleeper"

	"github.com/google/uuid"
)

// redeliveryDelay is how long the loop backs off after a failed job or a
// bus error before fetching again. The unacked batch stays pending and
// comes back through the consumer's claim path.
const redeliveryDelay = 30 * time.Second

// Enricher runs one enrichment job over a combined id batch.
type Enricher interface {
	ProcessArticles(ctx context.Context, ids []int64) (*enrich.Stats, error)
}

// Service is the job dispatcher. Run owns the consume loop; poisoned
// deliveries never reach it because the consumer diverts them to the
// dead-letter stream at claim time.
type Service struct {
	Consumer repository.ArticleConsumer
	Enricher Enricher
	Sleeper  sleeper.Sleeper
}

// NewService creates a dispatcher over the given bus consumer and worker.
func NewService(consumer repository.ArticleConsumer, enricher Enricher, s sleeper.Sleeper) Service {
	return Service{Consumer: consumer, Enricher: enricher, Sleeper: s}
}

// Run consumes article id batches until ctx ends and returns the context's
// error. Bus and job failures never stop the loop: the batch at hand is
// left unacknowledged and the loop backs off before trying again.
func (s *Service) Run(ctx context.Context) error {
	logger := slog.Default()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		messages, err := s.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("bus fetch failed", slog.Any("error", err))
			if err := s.Sleeper.Sleep(ctx, "redelivery-backoff", redeliveryDelay); err != nil {
				return err
			}
			continue
		}
		if len(messages) == 0 {
			continue
		}

		if err := s.dispatchBatch(ctx, messages); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("batch left unacked for redelivery", slog.Any("error", err))
			if err := s.Sleeper.Sleep(ctx, "redelivery-backoff", redeliveryDelay); err != nil {
				return err
			}
		}
	}
}

// dispatchBatch runs one enrichment job over everything one fetch
// returned. Deliveries carrying no ids are acknowledged outright; for the
// rest the acknowledgment waits until the job has finished, because the
// worker's terminal statuses are what make dropping the messages safe.
// A job_id-tagged logger rides the job context, so every log line the
// enrichment pipeline emits can be correlated back to this batch.
func (s *Service) dispatchBatch(ctx context.Context, messages []repository.QueueMessage) error {
	messageIDs := make([]string, len(messages))
	var ids []int64
	for i, m := range messages {
		messageIDs[i] = m.ID
		ids = append(ids, m.ArticleIDs...)
	}

	if len(ids) == 0 {
		if err := s.Consumer.Ack(ctx, messageIDs...); err != nil {
			return fmt.Errorf("ack empty batch: %w", err)
		}
		return nil
	}

	jobID := uuid.NewString()
	logger := slog.Default().With(slog.String("job_id", jobID))
	ctx = logging.WithLogger(ctx, logger)

	logger.Info("dispatching enrichment job",
		slog.Int("messages", len(messages)),
		slog.Int("article_ids", len(ids)))

	stats, err := s.Enricher.ProcessArticles(ctx, ids)
	if err != nil {
		return fmt.Errorf("enrichment job %s: %w", jobID, err)
	}

	if err := s.Consumer.Ack(ctx, messageIDs...); err != nil {
		return fmt.Errorf("ack batch for job %s: %w", jobID, err)
	}

	logger.Info("enrichment job finished",
		slog.Int("processable", stats.Processable),
		slog.Int64("processed", stats.Processed),
		slog.Int64("failed", stats.Failed),
		slog.Duration("duration", stats.Duration))
	return nil
}
