package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsriver/internal/repository"
	"newsriver/internal/usecase/enrich"
)

const (
	// stalledGrace is how long a row may sit non-terminal before the
	// reconciler counts it as stuck. Anything younger is assumed to be in
	// flight or waiting on ordinary redelivery.
	stalledGrace = 30 * time.Minute

	// stalledLimit caps one sweep. The publisher splits the ids into
	// bus-sized sub-batches, so the cap bounds sweep work rather than
	// message size.
	stalledLimit = 500
)

// Reconciler re-publishes ids of articles that entered the pipeline but
// never reached a terminal status. A crash between acknowledgment and
// commit strands such rows; re-delivering them is safe because the worker
// skips anything already finalized.
type Reconciler struct {
	Articles  repository.ArticleRepository
	Publisher repository.ArticlePublisher
}

// NewReconciler creates a Reconciler over the given repository and
// publisher side of the bus.
func NewReconciler(articles repository.ArticleRepository, publisher repository.ArticlePublisher) Reconciler {
	return Reconciler{Articles: articles, Publisher: publisher}
}

// Requeue sweeps for stalled articles still inside the enrichment window
// and feeds their ids back onto the bus, returning how many were
// requeued. Finding nothing is the normal case and stays quiet.
func (r *Reconciler) Requeue(ctx context.Context) (int, error) {
	now := time.Now()
	ids, err := r.Articles.ListStalled(ctx, now.Add(-enrich.ProcessableWindow), now.Add(-stalledGrace), stalledLimit)
	if err != nil {
		return 0, fmt.Errorf("list stalled articles: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	messageIDs, err := r.Publisher.PublishArticleIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("republish stalled articles: %w", err)
	}
	slog.Info("stalled articles requeued",
		slog.Int("articles", len(ids)),
		slog.Int("messages", len(messageIDs)))
	return len(ids), nil
}
