package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hopl"

// ScanMetrics tracks compliance scan throughput and outcomes.
type ScanMetrics struct {
	duration *prometheus.HistogramVec
	results  *prometheus.CounterVec
	cache    *prometheus.CounterVec
}

// NewScanMetrics registers scan metrics on reg. A nil registerer yields a no-op collector.
func NewScanMetrics(reg prometheus.Registerer) *ScanMetrics {
	if reg == nil {
		return &ScanMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Wall time spent fetching and evaluating a site.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 15, 30},
	}, []string{"outcome"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Completed scans by risk level.",
	}, []string{"risk_level"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_cache_lookups_total",
		Help:      "Scan cache lookups by result.",
	}, []string{"result"})
	reg.MustRegister(duration, results, cache)
	return &ScanMetrics{duration: duration, results: results, cache: cache}
}

// ObserveScan records one evaluated scan. outcome is "reachable" or "unreachable".
func (m *ScanMetrics) ObserveScan(outcome, riskLevel string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(outcome)).Observe(d.Seconds())
	m.results.WithLabelValues(normalizeLabel(riskLevel)).Inc()
}

// CacheLookup records a cache hit or miss.
func (m *ScanMetrics) CacheLookup(hit bool) {
	if m == nil || m.cache == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}

// GenerationMetrics tracks document assembly and the credits that move with it.
type GenerationMetrics struct {
	attempts  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	fallbacks *prometheus.CounterVec
	credits   *prometheus.CounterVec
}

// NewGenerationMetrics registers generation metrics on reg.
func NewGenerationMetrics(reg prometheus.Registerer) *GenerationMetrics {
	if reg == nil {
		return &GenerationMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_attempts_total",
		Help:      "Document generation attempts by terminal status.",
	}, []string{"document_type", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Time from authorization to terminal state.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
	}, []string{"generator"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "template_fallbacks_total",
		Help:      "Template resolutions that fell back from the requested jurisdiction.",
	}, []string{"requested", "resolved"})
	credits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credit_movements_total",
		Help:      "Credits moved through the ledger by direction.",
	}, []string{"direction"})
	reg.MustRegister(attempts, duration, fallbacks, credits)
	return &GenerationMetrics{attempts: attempts, duration: duration, fallbacks: fallbacks, credits: credits}
}

// ObserveAttempt records a terminal generation attempt.
func (m *GenerationMetrics) ObserveAttempt(documentType, status, generator string, d time.Duration) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(documentType), normalizeLabel(status)).Inc()
	m.duration.WithLabelValues(normalizeLabel(generator)).Observe(d.Seconds())
}

// IncFallback records a template resolved through the fallback chain.
func (m *GenerationMetrics) IncFallback(requested, resolved string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.WithLabelValues(normalizeLabel(requested), normalizeLabel(resolved)).Inc()
}

// AddCredits records credits debited, refunded, or purchased.
func (m *GenerationMetrics) AddCredits(direction string, n int) {
	if m == nil || m.credits == nil || n <= 0 {
		return
	}
	m.credits.WithLabelValues(normalizeLabel(direction)).Add(float64(n))
}
