package repository

import "context"

// QueueMessage is a single bus delivery carrying article ids that await
// enrichment. Deliveries counts how many times the entry has been handed
// to a consumer, starting at 1 for a fresh read.
type QueueMessage struct {
	ID         string
	ArticleIDs []int64
	Deliveries int64
}

// ArticlePublisher enqueues newly inserted article ids for the enrichment
// worker. Implementations split large id sets into bounded sub-batches so
// a single message never exceeds the batch cap.
type ArticlePublisher interface {
	// PublishArticleIDs enqueues ids and returns the bus message ids that
	// were written. Publishing an empty set writes nothing.
	PublishArticleIDs(ctx context.Context, ids []int64) ([]string, error)
}

// ArticleConsumer reads article id batches off the bus. Delivery is at
// least once; callers must tolerate seeing the same ids twice.
type ArticleConsumer interface {
	// Fetch returns the next batch of deliveries, claiming entries
	// abandoned by dead consumers before reading new ones. An empty
	// result means nothing arrived within the configured block window.
	Fetch(ctx context.Context) ([]QueueMessage, error)

	// Ack confirms that the given deliveries were fully handed off and
	// removes them from the pending list.
	Ack(ctx context.Context, messageIDs ...string) error
}
