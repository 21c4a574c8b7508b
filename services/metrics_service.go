package services

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_http_requests_total",
			Help: "Total management API requests",
		},
		[]string{"route"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keeper_http_request_duration_seconds",
			Help:    "Duration of management API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	errorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_http_request_errors_total",
			Help: "Management API requests answered with status >= 400",
		},
		[]string{"route"},
	)

	provisionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_provision_runs_total",
			Help: "Provisioning pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keeper_provision_stage_duration_seconds",
			Help:    "Duration of provisioning pipeline stages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	stageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_provision_stage_failures_total",
			Help: "Fatal provisioning stage outcomes",
		},
		[]string{"stage"},
	)

	exporterHealth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "keeper_exporter_health",
			Help: "Last observed exporter health (1 available, 0.5 partial, 0 unavailable)",
		},
	)

	totalRequests int64
	totalErrors   int64
)

func init() {
	prometheus.MustRegister(requestCount)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(errorCount)
	prometheus.MustRegister(provisionRuns)
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(stageFailures)
	prometheus.MustRegister(exporterHealth)
}

func IncrementRequestCount(route string) {
	requestCount.WithLabelValues(route).Inc()
	atomic.AddInt64(&totalRequests, 1)
}

func RecordRequestDuration(route string, seconds float64) {
	requestDuration.WithLabelValues(route).Observe(seconds)
}

func IncrementErrorCount(route string) {
	errorCount.WithLabelValues(route).Inc()
	atomic.AddInt64(&totalErrors, 1)
}

func GetTotalRequestCount() int64 {
	return atomic.LoadInt64(&totalRequests)
}

func GetTotalErrorCount() int64 {
	return atomic.LoadInt64(&totalErrors)
}

// ObserveStage records the duration of one pipeline stage and counts fatal
// outcomes.
func ObserveStage(stage string, d time.Duration, fatal bool) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if fatal {
		stageFailures.WithLabelValues(stage).Inc()
	}
}

// CountRun counts a finished pipeline run under its outcome label.
func CountRun(outcome string) {
	provisionRuns.WithLabelValues(outcome).Inc()
}

// SetExporterHealth maps the last health classification onto a gauge.
func SetExporterHealth(value float64) {
	exporterHealth.Set(value)
}
