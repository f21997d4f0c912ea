package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/pkg/database"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
)

// ComputeRepository handles compute target and training job data
// operations in PostgreSQL
type ComputeRepository struct {
	db *database.PostgresDB
}

// NewComputeRepository creates a new compute repository
func NewComputeRepository(db *database.PostgresDB) *ComputeRepository {
	return &ComputeRepository{db: db}
}

// CreateTarget registers a new compute target
func (r *ComputeRepository) CreateTarget(ctx context.Context, target *domain.ComputeTarget) error {
	labelsJSON, err := json.Marshal(target.Labels)
	if err != nil {
		labelsJSON = []byte("{}")
	}

	query := `
		INSERT INTO compute_targets (id, workspace_id, name, kind, max_parallel, labels, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		target.ID,
		target.WorkspaceID,
		target.Name,
		target.Kind,
		target.MaxParallel,
		labelsJSON,
		target.CreatedAt,
		target.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.Conflict("compute target name already exists in workspace")
		}
		return fmt.Errorf("failed to create compute target: %w", err)
	}

	return nil
}

// GetTargetByID retrieves a compute target by ID
func (r *ComputeRepository) GetTargetByID(ctx context.Context, id uuid.UUID) (*domain.ComputeTarget, error) {
	query := `
		SELECT id, workspace_id, name, kind, max_parallel, labels, created_at, updated_at
		FROM compute_targets
		WHERE id = $1
	`

	return r.scanTarget(r.db.Pool.QueryRow(ctx, query, id))
}

// GetTargetByName retrieves a compute target by workspace and name
func (r *ComputeRepository) GetTargetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.ComputeTarget, error) {
	query := `
		SELECT id, workspace_id, name, kind, max_parallel, labels, created_at, updated_at
		FROM compute_targets
		WHERE workspace_id = $1 AND name = $2
	`

	return r.scanTarget(r.db.Pool.QueryRow(ctx, query, workspaceID, name))
}

// ListTargets retrieves all compute targets in a workspace
func (r *ComputeRepository) ListTargets(ctx context.Context, workspaceID uuid.UUID) ([]domain.ComputeTarget, error) {
	query := `
		SELECT id, workspace_id, name, kind, max_parallel, labels, created_at, updated_at
		FROM compute_targets
		WHERE workspace_id = $1
		ORDER BY name
	`

	rows, err := r.db.Pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list compute targets: %w", err)
	}
	defer rows.Close()

	var targets []domain.ComputeTarget
	for rows.Next() {
		target, err := r.scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, *target)
	}

	return targets, nil
}

// DeleteTarget removes a compute target
func (r *ComputeRepository) DeleteTarget(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM compute_targets WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete compute target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("compute target")
	}

	return nil
}

const jobColumns = `id, workspace_id, experiment_id, run_id, target_id, status, entry_point,
		arguments, env, snapshot_path, timeout_sec, max_retries, error,
		submitted_at, started_at, finished_at, created_at, updated_at`

// CreateJob creates a new training job
func (r *ComputeRepository) CreateJob(ctx context.Context, job *domain.TrainingJob) error {
	argsJSON, err := json.Marshal(job.Arguments)
	if err != nil {
		argsJSON = []byte("[]")
	}
	envJSON, err := json.Marshal(job.Env)
	if err != nil {
		envJSON = []byte("{}")
	}

	query := `
		INSERT INTO training_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		job.ID,
		job.WorkspaceID,
		job.ExperimentID,
		job.RunID,
		job.TargetID,
		job.Status,
		job.EntryPoint,
		argsJSON,
		envJSON,
		job.SnapshotPath,
		job.TimeoutSec,
		job.MaxRetries,
		job.Error,
		job.SubmittedAt,
		job.StartedAt,
		job.FinishedAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create training job: %w", err)
	}

	return nil
}

// GetJobByID retrieves a training job by ID
func (r *ComputeRepository) GetJobByID(ctx context.Context, id uuid.UUID) (*domain.TrainingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM training_jobs WHERE id = $1`

	return r.scanJob(r.db.Pool.QueryRow(ctx, query, id))
}

// UpdateJobStatus transitions a job's status and records timestamps
func (r *ComputeRepository) UpdateJobStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, jobErr string) error {
	now := time.Now()

	var startedAt, finishedAt *time.Time
	switch status {
	case domain.JobStatusRunning:
		startedAt = &now
	case domain.JobStatusSucceeded, domain.JobStatusFailed, domain.JobStatusCanceled:
		finishedAt = &now
	}

	query := `
		UPDATE training_jobs
		SET status = $2, error = $3,
			started_at = COALESCE($4, started_at),
			finished_at = COALESCE($5, finished_at),
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, status, jobErr, startedAt, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("training job")
	}

	return nil
}

// ListJobs retrieves training jobs matching the filter
func (r *ComputeRepository) ListJobs(ctx context.Context, filter *domain.TrainingJobFilter, limit, offset int) (*domain.TrainingJobList, error) {
	conditions := []string{"workspace_id = $1"}
	args := []interface{}{filter.WorkspaceID}
	argNum := 2

	if filter.TargetID != nil {
		conditions = append(conditions, fmt.Sprintf("target_id = $%d", argNum))
		args = append(args, *filter.TargetID)
		argNum++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM training_jobs %s", whereClause)
	var totalCount int64
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s FROM training_jobs
		%s
		ORDER BY submitted_at DESC
		LIMIT $%d OFFSET $%d
	`, jobColumns, whereClause, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.TrainingJob
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	return &domain.TrainingJobList{
		Jobs:       jobs,
		TotalCount: totalCount,
		HasMore:    int64(offset+len(jobs)) < totalCount,
	}, nil
}

// CountRunningJobs counts jobs currently running on a compute target
func (r *ComputeRepository) CountRunningJobs(ctx context.Context, targetID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM training_jobs WHERE target_id = $1 AND status = 'running'`

	var count int64
	if err := r.db.Pool.QueryRow(ctx, query, targetID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count running jobs: %w", err)
	}

	return count, nil
}

func (r *ComputeRepository) scanTarget(row rowScanner) (*domain.ComputeTarget, error) {
	var target domain.ComputeTarget
	var labelsJSON []byte

	if err := row.Scan(
		&target.ID,
		&target.WorkspaceID,
		&target.Name,
		&target.Kind,
		&target.MaxParallel,
		&labelsJSON,
		&target.CreatedAt,
		&target.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("compute target")
		}
		return nil, fmt.Errorf("failed to scan compute target: %w", err)
	}

	if len(labelsJSON) > 0 {
		_ = json.Unmarshal(labelsJSON, &target.Labels)
	}

	return &target, nil
}

func (r *ComputeRepository) scanJob(row rowScanner) (*domain.TrainingJob, error) {
	var job domain.TrainingJob
	var argsJSON, envJSON []byte

	if err := row.Scan(
		&job.ID,
		&job.WorkspaceID,
		&job.ExperimentID,
		&job.RunID,
		&job.TargetID,
		&job.Status,
		&job.EntryPoint,
		&argsJSON,
		&envJSON,
		&job.SnapshotPath,
		&job.TimeoutSec,
		&job.MaxRetries,
		&job.Error,
		&job.SubmittedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("training job")
		}
		return nil, fmt.Errorf("failed to scan training job: %w", err)
	}

	if len(argsJSON) > 0 {
		_ = json.Unmarshal(argsJSON, &job.Arguments)
	}
	if len(envJSON) > 0 {
		_ = json.Unmarshal(envJSON, &job.Env)
	}

	return &job, nil
}
