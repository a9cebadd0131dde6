package slo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SLO targets define the service level objectives for the enrichment
// pipeline. These targets are used to measure and monitor pipeline
// reliability.
const (
	// EnrichmentSuccessSLO defines the target fraction of processable
	// articles that reach PROCESSED per batch (0-1).
	EnrichmentSuccessSLO = 0.95

	// BatchDurationSLO defines the wall-clock budget for one enrichment
	// batch in seconds. Batches that overrun hold back their ack and
	// push stalled rows toward the requeue sweep.
	BatchDurationSLO = 600.0

	// RequeueBacklogSLO defines the stalled-article count per requeue
	// sweep above which redelivery is considered to be falling behind.
	RequeueBacklogSLO = 50
)

// SLO tracking metrics
// These gauges hold the most recent measurement so dashboards can plot
// them directly against the targets above.
var (
	// SLOEnrichmentSuccess tracks the committed fraction of the last batch
	// calculated as: processed / processable
	SLOEnrichmentSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_enrichment_success_ratio",
			Help: "Committed fraction of the last enrichment batch (0-1), target: 0.95",
		},
	)

	// SLOBatchDuration tracks the wall-clock duration of the last batch
	SLOBatchDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_batch_duration_seconds",
			Help: "Wall-clock duration of the last enrichment batch in seconds, target: 600",
		},
	)

	// SLORequeueBacklog tracks how many stalled articles the last
	// reconciler sweep had to republish
	SLORequeueBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_requeue_backlog",
			Help: "Stalled articles republished by the last requeue sweep, target: below 50",
		},
	)
)

// UpdateEnrichmentSuccess updates the enrichment success SLO metric.
// Called after each batch that had processable articles.
//
// Example calculation:
//
//	ratio := float64(stats.Processed) / float64(stats.Processable)
//	slo.UpdateEnrichmentSuccess(ratio)
func UpdateEnrichmentSuccess(ratio float64) {
	SLOEnrichmentSuccess.Set(ratio)
}

// UpdateBatchDuration updates the batch duration SLO metric.
// Called after each batch that had processable articles, so a no-op
// batch never masks the duration of the last real one.
func UpdateBatchDuration(d time.Duration) {
	SLOBatchDuration.Set(d.Seconds())
}

// UpdateRequeueBacklog updates the requeue backlog SLO metric.
// Called after each reconciler sweep, including sweeps that found
// nothing, so the gauge decays back to zero when the pipeline is
// healthy.
func UpdateRequeueBacklog(count int) {
	SLORequeueBacklog.Set(float64(count))
}
