package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics records batch outcomes for the background workers.
type WorkerMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewWorkerMetrics registers the worker metrics on the provided registerer.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		return &WorkerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "worker_batch_duration_seconds",
		Help:      "Duration of worker batches in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"worker"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_items_processed_total",
		Help:      "Items processed successfully by a worker.",
	}, []string{"worker"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_items_failed_total",
		Help:      "Items a worker failed to process.",
	}, []string{"worker"})
	reg.MustRegister(duration, success, failure)
	return &WorkerMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveBatch records the duration of one batch for the named worker.
func (w *WorkerMetrics) ObserveBatch(worker string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(worker)).Observe(duration.Seconds())
}

// AddSuccess adds n processed items for the named worker.
func (w *WorkerMetrics) AddSuccess(worker string, n int) {
	if w == nil || w.success == nil || n <= 0 {
		return
	}
	w.success.WithLabelValues(normalizeLabel(worker)).Add(float64(n))
}

// IncFailure increments the failure counter for the named worker.
func (w *WorkerMetrics) IncFailure(worker string) {
	if w == nil || w.failure == nil {
		return
	}
	w.failure.WithLabelValues(normalizeLabel(worker)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
