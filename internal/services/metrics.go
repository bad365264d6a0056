package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// MetricsCollector owns the engine's Prometheus instruments. Registration
// tolerates duplicates so tests can build collectors freely.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
	feedbackTotal    *prometheus.CounterVec
	safetyViolations prometheus.Counter
	cacheHits        *prometheus.CounterVec
}

func NewMetricsCollector(logger *logrus.Logger) *MetricsCollector {
	mc := &MetricsCollector{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Recommendation requests by outcome",
		}, []string{"result"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recommendation_request_duration_seconds",
			Help:    "End-to-end recommendation request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"result"}),
		feedbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedback_processed_total",
			Help: "Feedback submissions by type and outcome",
		}, []string{"feedback_type", "outcome"}),
		safetyViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audience_safety_violations_total",
			Help: "Items dropped by the audience post-condition check",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache operations by tier and result",
		}, []string{"tier", "result"}),
	}

	for _, c := range []prometheus.Collector{
		mc.requestsTotal, mc.requestLatency, mc.feedbackTotal,
		mc.safetyViolations, mc.cacheHits,
	} {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				logger.WithError(err).Warn("Failed to register metric")
			}
		}
	}
	return mc
}

// ObserveRequest records one recommendation request. result is one of
// generated, cache_hit, fallback_cached, fallback_popularity, error.
func (mc *MetricsCollector) ObserveRequest(result string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requestsTotal.WithLabelValues(result).Inc()
	mc.requestLatency.WithLabelValues(result).Observe(duration.Seconds())
}

func (mc *MetricsCollector) ObserveFeedback(feedbackType, outcome string) {
	if mc == nil {
		return
	}
	mc.feedbackTotal.WithLabelValues(feedbackType, outcome).Inc()
}

func (mc *MetricsCollector) IncSafetyViolation() {
	if mc == nil {
		return
	}
	mc.safetyViolations.Inc()
}

func (mc *MetricsCollector) ObserveCache(tier, result string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(tier, result).Inc()
}
