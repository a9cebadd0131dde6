package blob

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks object store traffic.
//
// Series:
//   - blob_uploads_total: uploads by outcome (success, failure)
//   - blob_upload_bytes_total: bytes written by successful uploads
type Metrics struct {
	UploadsTotal     *prometheus.CounterVec
	UploadBytesTotal prometheus.Counter
}

// NewMetrics creates and registers the blob metric series. A nil
// registerer falls back to the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blob_uploads_total",
			Help: "Total article text uploads by outcome",
		}, []string{"status"}),
		UploadBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "blob_upload_bytes_total",
			Help: "Total bytes written by successful uploads",
		}),
	}
}

// RecordUpload counts one upload attempt. Safe to call on a nil
// receiver.
func (m *Metrics) RecordUpload(status string, bytes int) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.UploadBytesTotal.Add(float64(bytes))
	}
}
