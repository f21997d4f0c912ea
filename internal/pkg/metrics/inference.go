package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlyard_endpoint_invocations_total",
			Help: "Total number of endpoint invocations",
		},
		[]string{"endpoint", "status"},
	)

	invocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlyard_endpoint_invocation_duration_seconds",
			Help:    "End-to-end invocation duration including the scorer call",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	metricPointsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mlyard_metric_points_ingested_total",
			Help: "Total number of metric points written to storage",
		},
	)

	trainingJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlyard_training_jobs_total",
			Help: "Total number of training jobs by final status",
		},
		[]string{"status"},
	)
)

// RecordInvocation records an endpoint invocation outcome
func RecordInvocation(endpoint, status string, duration time.Duration) {
	invocationTotal.WithLabelValues(endpoint, status).Inc()
	invocationDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordMetricPoints records ingested metric points
func RecordMetricPoints(count int) {
	metricPointsIngested.Add(float64(count))
}

// RecordJobFinished records a training job reaching a terminal status
func RecordJobFinished(status string) {
	trainingJobsTotal.WithLabelValues(status).Inc()
}
