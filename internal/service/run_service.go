package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/pkg/id"
	"github.com/mlyard/mlyard/internal/pkg/logger"
	"github.com/mlyard/mlyard/internal/pkg/metrics"
	"github.com/mlyard/mlyard/internal/pkg/pagination"
	"github.com/mlyard/mlyard/internal/storage"
	"github.com/mlyard/mlyard/internal/tasks"
)

// RunRepository defines run persistence operations
type RunRepository interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id string) (*domain.Run, error)
	UpdateStatus(ctx context.Context, id string, status domain.RunStatus, endedAt *time.Time) error
	MergeParams(ctx context.Context, id string, params map[string]string) error
	MergeTags(ctx context.Context, id string, tags map[string]string) error
	DeleteTag(ctx context.Context, id string, key string) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, filter *domain.RunFilter, limit, offset int) (*domain.RunList, error)
}

// MetricRepository defines metric point persistence operations
type MetricRepository interface {
	InsertBatch(ctx context.Context, points []domain.MetricPoint) error
	GetHistory(ctx context.Context, runID, name string) ([]domain.MetricPoint, error)
	GetLatest(ctx context.Context, runID string) ([]domain.LatestMetric, error)
	GetLatestForRuns(ctx context.Context, runIDs []string, name string) (map[string]float64, error)
	ListNames(ctx context.Context, runID string) ([]string, error)
	DeleteByRunIDs(ctx context.Context, runIDs []string) error
}

// EventPublisher publishes run lifecycle events for live subscribers
type EventPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// ArtifactDeleter removes a run's stored artifacts
type ArtifactDeleter interface {
	DeleteRun(ctx context.Context, runID string) error
}

// RunService handles run lifecycle, parameters, tags and metrics
type RunService struct {
	repo           RunRepository
	metricRepo     MetricRepository
	experimentRepo ExperimentRepository
	publisher      EventPublisher
	artifacts      ArtifactDeleter
	taskClient     tasks.Enqueuer
	exportEnabled  bool
}

// NewRunService creates a new run service
func NewRunService(
	repo RunRepository,
	metricRepo MetricRepository,
	experimentRepo ExperimentRepository,
	publisher EventPublisher,
	artifacts ArtifactDeleter,
	taskClient tasks.Enqueuer,
	exportEnabled bool,
) *RunService {
	return &RunService{
		repo:           repo,
		metricRepo:     metricRepo,
		experimentRepo: experimentRepo,
		publisher:      publisher,
		artifacts:      artifacts,
		taskClient:     taskClient,
		exportEnabled:  exportEnabled,
	}
}

// EventChannel returns the pub/sub channel carrying events for a run
func EventChannel(runID string) string {
	return "mlyard:run:" + runID
}

// RunEvent is published on run state changes and metric batches
type RunEvent struct {
	Type      string    `json:"type"`
	RunID     string    `json:"runId"`
	Status    string    `json:"status,omitempty"`
	Metrics   int       `json:"metrics,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Create starts a new run in an experiment
func (s *RunService) Create(ctx context.Context, experimentID uuid.UUID, input *domain.RunInput, source domain.RunSource) (*domain.Run, error) {
	exp, err := s.experimentRepo.GetByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.LifecycleStage == domain.LifecycleStageDeleted {
		return nil, apperrors.Conflict("cannot start runs in an archived experiment")
	}

	runID := id.NewRunID()
	now := time.Now()

	status := domain.RunStatusRunning
	if source == domain.RunSourceJob {
		status = domain.RunStatusScheduled
	}

	run := &domain.Run{
		ID:            runID,
		ExperimentID:  experimentID,
		Name:          input.Name,
		Status:        status,
		Source:        source,
		ComputeTarget: input.ComputeTarget,
		EntryPoint:    input.EntryPoint,
		GitCommit:     input.GitCommit,
		User:          input.User,
		ArtifactRoot:  storage.RunRoot(runID),
		Tags:          input.Tags,
		StartedAt:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, run); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, &RunEvent{
		Type:      "run_created",
		RunID:     run.ID,
		Status:    string(run.Status),
		Timestamp: now,
	})

	return run, nil
}

// Get retrieves a run by ID
func (s *RunService) Get(ctx context.Context, runID string) (*domain.Run, error) {
	if err := id.ValidateRunID(runID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, runID)
}

// UpdateStatus transitions a run through its lifecycle. Terminal states
// stamp the end time and, when enabled, trigger metric export.
func (s *RunService) UpdateStatus(ctx context.Context, runID string, next domain.RunStatus) (*domain.Run, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status == next {
		return run, nil
	}
	if !run.Status.CanTransitionTo(next) {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot transition run from %s to %s", run.Status, next))
	}

	var endedAt *time.Time
	if next.IsTerminal() {
		now := time.Now()
		endedAt = &now
	}

	if err := s.repo.UpdateStatus(ctx, runID, next, endedAt); err != nil {
		return nil, err
	}

	run.Status = next
	run.EndedAt = endedAt

	s.publishEvent(ctx, &RunEvent{
		Type:      "status_changed",
		RunID:     runID,
		Status:    string(next),
		Timestamp: time.Now(),
	})

	if next == domain.RunStatusCompleted && s.exportEnabled && s.taskClient != nil {
		if err := tasks.EnqueueMetricExport(s.taskClient, &tasks.MetricExportPayload{RunID: runID}); err != nil {
			logger.Warn("failed to enqueue metric export",
				zap.String("run_id", runID),
				zap.Error(err),
			)
		}
	}

	return run, nil
}

// LogParams records write-once parameters on a run. Re-logging a key
// with the same value is a no-op; a different value is a conflict.
func (s *RunService) LogParams(ctx context.Context, runID string, entries []domain.ParamEntry) error {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return apperrors.Conflict("cannot log params on a finished run")
	}

	params := make(map[string]string, len(entries))
	for _, e := range entries {
		if existing, ok := run.Params[e.Key]; ok && existing != e.Value {
			return apperrors.Conflict(fmt.Sprintf("param %q already logged with a different value", e.Key))
		}
		if dup, ok := params[e.Key]; ok && dup != e.Value {
			return apperrors.Conflict(fmt.Sprintf("param %q appears twice with different values", e.Key))
		}
		params[e.Key] = e.Value
	}

	return s.repo.MergeParams(ctx, runID, params)
}

// SetTags sets or overwrites tags on a run
func (s *RunService) SetTags(ctx context.Context, runID string, entries []domain.TagEntry) error {
	if _, err := s.Get(ctx, runID); err != nil {
		return err
	}

	tags := make(map[string]string, len(entries))
	for _, e := range entries {
		tags[e.Key] = e.Value
	}

	return s.repo.MergeTags(ctx, runID, tags)
}

// DeleteTag removes a tag from a run
func (s *RunService) DeleteTag(ctx context.Context, runID, key string) error {
	if err := id.ValidateRunID(runID); err != nil {
		return err
	}
	return s.repo.DeleteTag(ctx, runID, key)
}

// LogMetrics appends a batch of metric points to a run
func (s *RunService) LogMetrics(ctx context.Context, runID string, batch *domain.MetricBatch) error {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return apperrors.Conflict("cannot log metrics on a finished run")
	}

	now := time.Now()
	points := make([]domain.MetricPoint, 0, len(batch.Metrics))
	for _, m := range batch.Metrics {
		ts := now
		if m.Timestamp > 0 {
			ts = time.UnixMilli(m.Timestamp)
		}
		points = append(points, domain.MetricPoint{
			RunID:     runID,
			Name:      m.Name,
			Value:     m.Value,
			Step:      m.Step,
			Timestamp: ts,
		})
	}

	if err := s.metricRepo.InsertBatch(ctx, points); err != nil {
		return err
	}

	metrics.RecordMetricPoints(len(points))

	s.publishEvent(ctx, &RunEvent{
		Type:      "metrics_logged",
		RunID:     runID,
		Metrics:   len(points),
		Timestamp: now,
	})

	return nil
}

// GetMetricHistory retrieves the full series of one metric for a run
func (s *RunService) GetMetricHistory(ctx context.Context, runID, name string) (*domain.MetricSeries, error) {
	if err := id.ValidateRunID(runID); err != nil {
		return nil, err
	}

	points, err := s.metricRepo.GetHistory(ctx, runID, name)
	if err != nil {
		return nil, err
	}

	return &domain.MetricSeries{
		RunID:  runID,
		Name:   name,
		Points: points,
	}, nil
}

// GetLatestMetrics retrieves the most recent value per metric for a run
func (s *RunService) GetLatestMetrics(ctx context.Context, runID string) ([]domain.LatestMetric, error) {
	if err := id.ValidateRunID(runID); err != nil {
		return nil, err
	}
	return s.metricRepo.GetLatest(ctx, runID)
}

// Search retrieves runs for an experiment. Sorting by metric fetches the
// page by start time first, then orders it by the metric's latest value.
func (s *RunService) Search(ctx context.Context, filter *domain.RunFilter, page pagination.PageParams) (*domain.RunList, error) {
	list, err := s.repo.Search(ctx, filter, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	if filter.SortKey == domain.RunSortMetric && filter.SortMetric != "" && len(list.Runs) > 1 {
		if err := s.sortByMetric(ctx, list.Runs, filter.SortMetric, filter.Ascending); err != nil {
			return nil, err
		}
	}

	return list, nil
}

func (s *RunService) sortByMetric(ctx context.Context, runs []domain.Run, metric string, ascending bool) error {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}

	values, err := s.metricRepo.GetLatestForRuns(ctx, ids, metric)
	if err != nil {
		return err
	}

	// Runs without the metric sort last regardless of direction
	rank := func(r domain.Run) (float64, bool) {
		v, ok := values[r.ID]
		return v, ok
	}

	for i := 1; i < len(runs); i++ {
		for j := i; j > 0; j-- {
			vj, okj := rank(runs[j])
			vp, okp := rank(runs[j-1])

			swap := false
			switch {
			case okj && !okp:
				swap = true
			case okj && okp && ascending && vj < vp:
				swap = true
			case okj && okp && !ascending && vj > vp:
				swap = true
			}
			if !swap {
				break
			}
			runs[j], runs[j-1] = runs[j-1], runs[j]
		}
	}

	return nil
}

// Terminate force-kills a non-terminal run
func (s *RunService) Terminate(ctx context.Context, runID string) (*domain.Run, error) {
	return s.UpdateStatus(ctx, runID, domain.RunStatusKilled)
}

// Delete permanently removes a run, its metric points and artifacts
func (s *RunService) Delete(ctx context.Context, runID string) error {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	if !run.Status.IsTerminal() {
		return apperrors.Conflict("cannot delete a run that is still active")
	}

	if err := s.metricRepo.DeleteByRunIDs(ctx, []string{runID}); err != nil {
		logger.Warn("failed to delete metric points",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}

	if s.artifacts != nil {
		if err := s.artifacts.DeleteRun(ctx, runID); err != nil {
			logger.Warn("failed to delete run artifacts",
				zap.String("run_id", runID),
				zap.Error(err),
			)
		}
	}

	return s.repo.Delete(ctx, runID)
}

func (s *RunService) publishEvent(ctx context.Context, event *RunEvent) {
	if s.publisher == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	if err := s.publisher.Publish(ctx, EventChannel(event.RunID), string(data)); err != nil {
		logger.Debug("failed to publish run event",
			zap.String("run_id", event.RunID),
			zap.Error(err),
		)
	}
}
