package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/pkg/database"
)

// MetricRepository handles metric point operations in ClickHouse.
// Points are append-only; history queries return every logged value.
type MetricRepository struct {
	db *database.ClickHouseDB
}

// NewMetricRepository creates a new metric repository
func NewMetricRepository(db *database.ClickHouseDB) *MetricRepository {
	return &MetricRepository{db: db}
}

// InsertBatch inserts a batch of metric points
func (r *MetricRepository) InsertBatch(ctx context.Context, points []domain.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := r.db.PrepareBatch(ctx, `
		INSERT INTO metric_points (run_id, name, value, step, timestamp)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(
			p.RunID,
			p.Name,
			p.Value,
			p.Step,
			p.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// GetHistory retrieves the full history of one metric for a run,
// ordered by step then timestamp
func (r *MetricRepository) GetHistory(ctx context.Context, runID, name string) ([]domain.MetricPoint, error) {
	query := `
		SELECT run_id, name, value, step, timestamp
		FROM metric_points
		WHERE run_id = ? AND name = ?
		ORDER BY step ASC, timestamp ASC
	`

	rows, err := r.db.Query(ctx, query, runID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric history: %w", err)
	}
	defer rows.Close()

	var points []domain.MetricPoint
	for rows.Next() {
		var p domain.MetricPoint
		if err := rows.Scan(&p.RunID, &p.Name, &p.Value, &p.Step, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan metric point: %w", err)
		}
		points = append(points, p)
	}

	return points, nil
}

// GetLatest retrieves the most recent point per metric name for a run
func (r *MetricRepository) GetLatest(ctx context.Context, runID string) ([]domain.LatestMetric, error) {
	query := `
		SELECT name, argMax(value, (step, timestamp)), max(step), max(timestamp)
		FROM metric_points
		WHERE run_id = ?
		GROUP BY name
		ORDER BY name
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.LatestMetric
	for rows.Next() {
		var m domain.LatestMetric
		if err := rows.Scan(&m.Name, &m.Value, &m.Step, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan latest metric: %w", err)
		}
		metrics = append(metrics, m)
	}

	return metrics, nil
}

// GetLatestForRuns retrieves the latest value of one metric across many
// runs, used when sorting run searches by a metric
func (r *MetricRepository) GetLatestForRuns(ctx context.Context, runIDs []string, name string) (map[string]float64, error) {
	if len(runIDs) == 0 {
		return map[string]float64{}, nil
	}

	query := `
		SELECT run_id, argMax(value, (step, timestamp))
		FROM metric_points
		WHERE run_id IN (?) AND name = ?
		GROUP BY run_id
	`

	rows, err := r.db.Query(ctx, query, runIDs, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics for runs: %w", err)
	}
	defer rows.Close()

	values := make(map[string]float64, len(runIDs))
	for rows.Next() {
		var runID string
		var value float64
		if err := rows.Scan(&runID, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metric value: %w", err)
		}
		values[runID] = value
	}

	return values, nil
}

// ListNames retrieves the distinct metric names logged for a run
func (r *MetricRepository) ListNames(ctx context.Context, runID string) ([]string, error) {
	query := `
		SELECT DISTINCT name
		FROM metric_points
		WHERE run_id = ?
		ORDER BY name
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan metric name: %w", err)
		}
		names = append(names, name)
	}

	return names, nil
}

// DeleteByRunIDs removes all metric points for the given runs
func (r *MetricRepository) DeleteByRunIDs(ctx context.Context, runIDs []string) error {
	if len(runIDs) == 0 {
		return nil
	}

	query := `ALTER TABLE metric_points DELETE WHERE run_id IN (?)`
	if err := r.db.Exec(ctx, query, runIDs); err != nil {
		return fmt.Errorf("failed to delete metric points: %w", err)
	}

	return nil
}

// DeleteOlderThan removes metric points older than the cutoff
func (r *MetricRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	query := `ALTER TABLE metric_points DELETE WHERE timestamp < ?`
	if err := r.db.Exec(ctx, query, cutoff); err != nil {
		return fmt.Errorf("failed to delete old metric points: %w", err)
	}

	return nil
}
