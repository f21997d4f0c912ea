package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/pkg/logger"
	"github.com/mlyard/mlyard/internal/pkg/pagination"
	"github.com/mlyard/mlyard/internal/tasks"
)

// ComputeRepository defines compute target and training job persistence
type ComputeRepository interface {
	CreateTarget(ctx context.Context, target *domain.ComputeTarget) error
	GetTargetByID(ctx context.Context, id uuid.UUID) (*domain.ComputeTarget, error)
	GetTargetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.ComputeTarget, error)
	ListTargets(ctx context.Context, workspaceID uuid.UUID) ([]domain.ComputeTarget, error)
	DeleteTarget(ctx context.Context, id uuid.UUID) error
	CreateJob(ctx context.Context, job *domain.TrainingJob) error
	GetJobByID(ctx context.Context, id uuid.UUID) (*domain.TrainingJob, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, jobErr string) error
	ListJobs(ctx context.Context, filter *domain.TrainingJobFilter, limit, offset int) (*domain.TrainingJobList, error)
	CountRunningJobs(ctx context.Context, targetID uuid.UUID) (int64, error)
}

// DefaultJobTimeoutSec bounds jobs that never specify a timeout
const DefaultJobTimeoutSec = 3600

// DefaultTargetMaxParallel is how many jobs a target runs at once unless
// configured otherwise
const DefaultTargetMaxParallel = 1

// JobService handles compute targets and training job submission
type JobService struct {
	repo           ComputeRepository
	experimentRepo ExperimentRepository
	runService     *RunService
	taskClient     tasks.Enqueuer
}

// NewJobService creates a new job service
func NewJobService(repo ComputeRepository, experimentRepo ExperimentRepository, runService *RunService, taskClient tasks.Enqueuer) *JobService {
	return &JobService{
		repo:           repo,
		experimentRepo: experimentRepo,
		runService:     runService,
		taskClient:     taskClient,
	}
}

// CreateTarget registers a compute target in a workspace
func (s *JobService) CreateTarget(ctx context.Context, workspaceID uuid.UUID, input *domain.ComputeTargetInput) (*domain.ComputeTarget, error) {
	maxParallel := DefaultTargetMaxParallel
	if input.MaxParallel != nil {
		maxParallel = *input.MaxParallel
	}

	now := time.Now()
	target := &domain.ComputeTarget{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        input.Name,
		Kind:        input.Kind,
		MaxParallel: maxParallel,
		Labels:      input.Labels,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateTarget(ctx, target); err != nil {
		return nil, err
	}

	return target, nil
}

// GetTarget retrieves a compute target by ID
func (s *JobService) GetTarget(ctx context.Context, id uuid.UUID) (*domain.ComputeTarget, error) {
	return s.repo.GetTargetByID(ctx, id)
}

// ListTargets lists compute targets in a workspace
func (s *JobService) ListTargets(ctx context.Context, workspaceID uuid.UUID) ([]domain.ComputeTarget, error) {
	return s.repo.ListTargets(ctx, workspaceID)
}

// DeleteTarget removes a compute target. Targets with jobs still running
// cannot be removed.
func (s *JobService) DeleteTarget(ctx context.Context, id uuid.UUID) error {
	running, err := s.repo.CountRunningJobs(ctx, id)
	if err != nil {
		return err
	}
	if running > 0 {
		return apperrors.Conflict("compute target has running jobs")
	}

	return s.repo.DeleteTarget(ctx, id)
}

// Submit creates a training job on a compute target. The job gets its
// own run in scheduled state; the worker drives the run from there.
func (s *JobService) Submit(ctx context.Context, workspaceID uuid.UUID, input *domain.TrainingJobInput) (*domain.TrainingJob, error) {
	experimentID, err := uuid.Parse(input.ExperimentID)
	if err != nil {
		return nil, apperrors.Validation("invalid experiment ID")
	}

	experiment, err := s.experimentRepo.GetByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if experiment.WorkspaceID != workspaceID {
		return nil, apperrors.NotFound("experiment")
	}

	target, err := s.repo.GetTargetByName(ctx, workspaceID, input.TargetName)
	if err != nil {
		return nil, err
	}

	run, err := s.runService.Create(ctx, experimentID, &domain.RunInput{
		Name:          input.RunName,
		ComputeTarget: target.Name,
		EntryPoint:    input.EntryPoint,
	}, domain.RunSourceJob)
	if err != nil {
		return nil, err
	}

	timeoutSec := DefaultJobTimeoutSec
	if input.TimeoutSec != nil {
		timeoutSec = *input.TimeoutSec
	}
	maxRetries := 0
	if input.MaxRetries != nil {
		maxRetries = *input.MaxRetries
	}

	now := time.Now()
	job := &domain.TrainingJob{
		ID:           uuid.New(),
		WorkspaceID:  workspaceID,
		ExperimentID: experimentID,
		RunID:        run.ID,
		TargetID:     target.ID,
		Status:       domain.JobStatusQueued,
		EntryPoint:   input.EntryPoint,
		Arguments:    input.Arguments,
		Env:          input.Env,
		SnapshotPath: input.SnapshotPath,
		TimeoutSec:   timeoutSec,
		MaxRetries:   maxRetries,
		SubmittedAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		// the run was already created; leave it scheduled and let
		// retention clean it up
		return nil, err
	}

	if s.taskClient != nil {
		if err := tasks.EnqueueTrainingRun(s.taskClient, &tasks.TrainingRunPayload{
			JobID: job.ID,
			RunID: run.ID,
		}, maxRetries); err != nil {
			logger.Error("Failed to enqueue training job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
			_ = s.repo.UpdateJobStatus(ctx, job.ID, domain.JobStatusFailed, "failed to enqueue")
			return nil, apperrors.Internal("failed to schedule training job")
		}
	}

	return job, nil
}

// GetJob retrieves a training job by ID
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*domain.TrainingJob, error) {
	return s.repo.GetJobByID(ctx, id)
}

// ListJobs retrieves training jobs matching the filter
func (s *JobService) ListJobs(ctx context.Context, filter *domain.TrainingJobFilter, page pagination.PageParams) (*domain.TrainingJobList, error) {
	return s.repo.ListJobs(ctx, filter, page.Limit, page.Offset)
}

// Cancel requests cancellation of a queued or running job. The run is
// terminated alongside; a running worker notices the killed run and
// stops the process.
func (s *JobService) Cancel(ctx context.Context, id uuid.UUID) (*domain.TrainingJob, error) {
	job, err := s.repo.GetJobByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, apperrors.Conflict("job already finished")
	}

	if err := s.repo.UpdateJobStatus(ctx, id, domain.JobStatusCanceled, "canceled by user"); err != nil {
		return nil, err
	}

	if _, err := s.runService.Terminate(ctx, job.RunID); err != nil && !apperrors.IsConflict(err) {
		logger.Warn("Failed to terminate run for canceled job",
			zap.String("job_id", id.String()),
			zap.String("run_id", job.RunID),
			zap.Error(err))
	}

	return s.repo.GetJobByID(ctx, id)
}
