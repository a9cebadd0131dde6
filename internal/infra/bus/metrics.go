package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks bus traffic for both sides of the stream.
//
// Series:
//   - bus_messages_published_total: stream entries written
//   - bus_article_ids_published_total: article ids carried by those entries
//   - bus_messages_consumed_total: entries handed to the dispatcher
//   - bus_messages_acked_total: entries acknowledged
//   - bus_messages_dead_total: entries moved to the dead-letter stream
type Metrics struct {
	MessagesPublishedTotal   prometheus.Counter
	ArticleIDsPublishedTotal prometheus.Counter
	MessagesConsumedTotal    prometheus.Counter
	MessagesAckedTotal       prometheus.Counter
	MessagesDeadTotal        prometheus.Counter
}

// NewMetrics creates and registers the bus metric series. A nil
// registerer falls back to the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		MessagesPublishedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_messages_published_total",
			Help: "Total stream entries written to the pending stream",
		}),
		ArticleIDsPublishedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_article_ids_published_total",
			Help: "Total article ids carried by published stream entries",
		}),
		MessagesConsumedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_messages_consumed_total",
			Help: "Total stream entries handed to the dispatcher",
		}),
		MessagesAckedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_messages_acked_total",
			Help: "Total stream entries acknowledged",
		}),
		MessagesDeadTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bus_messages_dead_total",
			Help: "Total stream entries moved to the dead-letter stream",
		}),
	}
}

// RecordPublished adds one publish operation's entry and id counts.
// Safe to call on a nil receiver.
func (m *Metrics) RecordPublished(messages, articleIDs int) {
	if m == nil {
		return
	}
	m.MessagesPublishedTotal.Add(float64(messages))
	m.ArticleIDsPublishedTotal.Add(float64(articleIDs))
}

// RecordConsumed adds entries handed to the dispatcher.
// Safe to call on a nil receiver.
func (m *Metrics) RecordConsumed(messages int) {
	if m == nil {
		return
	}
	m.MessagesConsumedTotal.Add(float64(messages))
}

// RecordAcked adds acknowledged entries.
// Safe to call on a nil receiver.
func (m *Metrics) RecordAcked(messages int) {
	if m == nil {
		return
	}
	m.MessagesAckedTotal.Add(float64(messages))
}

// RecordDead counts one entry moved to the dead-letter stream.
// Safe to call on a nil receiver.
func (m *Metrics) RecordDead() {
	if m == nil {
		return
	}
	m.MessagesDeadTotal.Inc()
}
