package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	s3store "github.com/marmos91/driftflow/pkg/store/blob/s3"
)

// s3Metrics is the Prometheus implementation of the S3 store's Metrics.
type s3Metrics struct {
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewS3Metrics creates a Prometheus-backed collector for the S3 blob
// store. Returns nil if metrics are not enabled, which the store treats as
// zero-overhead no-op collection.
func NewS3Metrics() s3store.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &s3Metrics{
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "driftflow_s3_operation_duration_seconds",
				Help:    "Duration of S3 API calls by operation and outcome",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftflow_s3_bytes_total",
				Help: "Payload bytes transferred to or from S3 by operation",
			},
			[]string{"operation"},
		),
	}
}

func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

func (m *s3Metrics) RecordBytes(operation string, bytes int64) {
	m.bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
}
