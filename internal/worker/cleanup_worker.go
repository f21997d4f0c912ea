package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/config"
	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/service"
	"github.com/mlyard/mlyard/internal/tasks"
)

// WorkspaceLister lists workspaces for a full retention sweep
type WorkspaceLister interface {
	List(ctx context.Context) ([]domain.Workspace, error)
}

// RunSweeper deletes expired terminal runs and reports their IDs
type RunSweeper interface {
	DeleteOlderThan(ctx context.Context, workspaceID uuid.UUID, cutoff time.Time) ([]string, error)
}

// CleanupWorker enforces data retention. Terminal runs older than the
// retention window are removed together with their metric points and
// artifacts.
type CleanupWorker struct {
	logger     *zap.Logger
	cfg        config.RetentionConfig
	workspaces WorkspaceLister
	runs       RunSweeper
	metricRepo service.MetricRepository
	artifacts  service.ArtifactDeleter
}

// NewCleanupWorker creates a new cleanup worker
func NewCleanupWorker(
	logger *zap.Logger,
	cfg config.RetentionConfig,
	workspaces WorkspaceLister,
	runs RunSweeper,
	metricRepo service.MetricRepository,
	artifacts service.ArtifactDeleter,
) *CleanupWorker {
	return &CleanupWorker{
		logger:     logger,
		cfg:        cfg,
		workspaces: workspaces,
		runs:       runs,
		metricRepo: metricRepo,
		artifacts:  artifacts,
	}
}

// ProcessTask runs one retention sweep
func (w *CleanupWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.RetentionCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal cleanup payload: %v: %w", err, asynq.SkipRetry)
	}

	if !w.cfg.Enabled || w.cfg.Days <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -w.cfg.Days)

	var workspaceIDs []uuid.UUID
	if payload.WorkspaceID != nil {
		workspaceIDs = []uuid.UUID{*payload.WorkspaceID}
	} else {
		workspaces, err := w.workspaces.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list workspaces for sweep: %w", err)
		}
		for _, ws := range workspaces {
			workspaceIDs = append(workspaceIDs, ws.ID)
		}
	}

	total := 0
	for _, workspaceID := range workspaceIDs {
		deleted, err := w.sweepWorkspace(ctx, workspaceID, cutoff)
		if err != nil {
			w.logger.Error("retention sweep failed for workspace",
				zap.String("workspace_id", workspaceID.String()),
				zap.Error(err))
			continue
		}
		total += deleted
	}

	w.logger.Info("retention sweep finished",
		zap.Int("workspaces", len(workspaceIDs)),
		zap.Int("runs_deleted", total),
		zap.Time("cutoff", cutoff))

	return nil
}

// sweepWorkspace removes expired runs from one workspace
func (w *CleanupWorker) sweepWorkspace(ctx context.Context, workspaceID uuid.UUID, cutoff time.Time) (int, error) {
	runIDs, err := w.runs.DeleteOlderThan(ctx, workspaceID, cutoff)
	if err != nil {
		return 0, err
	}
	if len(runIDs) == 0 {
		return 0, nil
	}

	if err := w.metricRepo.DeleteByRunIDs(ctx, runIDs); err != nil {
		w.logger.Warn("failed to delete metric points during sweep",
			zap.String("workspace_id", workspaceID.String()),
			zap.Error(err))
	}

	if w.artifacts != nil {
		for _, runID := range runIDs {
			if err := w.artifacts.DeleteRun(ctx, runID); err != nil {
				w.logger.Warn("failed to delete run artifacts during sweep",
					zap.String("run_id", runID),
					zap.Error(err))
			}
		}
	}

	return len(runIDs), nil
}
