package domain

import "time"

// MetricPoint is a single logged metric value. Points are append-only and
// stored in ClickHouse; (run_id, name, step, timestamp) identifies a point.
type MetricPoint struct {
	RunID     string    `json:"runId"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Step      int64     `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricEntry is the wire form of a point in a batch log request
type MetricEntry struct {
	Name      string  `json:"name" validate:"required,max=250"`
	Value     float64 `json:"value"`
	Step      int64   `json:"step" validate:"min=0"`
	Timestamp int64   `json:"timestamp,omitempty"` // unix millis, server time when zero
}

// MetricBatch is a batch of metric points for one run
type MetricBatch struct {
	Metrics []MetricEntry `json:"metrics" validate:"required,min=1,max=1000,dive"`
}

// MetricSeries is the full history of one metric for one run
type MetricSeries struct {
	RunID  string        `json:"runId"`
	Name   string        `json:"name"`
	Points []MetricPoint `json:"points"`
}

// LatestMetric is the most recent point per metric name for a run
type LatestMetric struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Step      int64     `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}
