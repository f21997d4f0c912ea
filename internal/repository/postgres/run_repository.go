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

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/pkg/database"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
)

// RunRepository handles run data operations in PostgreSQL
type RunRepository struct {
	db *database.PostgresDB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *database.PostgresDB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, experiment_id, name, status, source, compute_target, entry_point,
		git_commit, run_user, artifact_root, params, tags, started_at, ended_at, created_at, updated_at`

// Create creates a new run
func (r *RunRepository) Create(ctx context.Context, run *domain.Run) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		paramsJSON = []byte("{}")
	}
	tagsJSON, err := json.Marshal(run.Tags)
	if err != nil {
		tagsJSON = []byte("{}")
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		run.ID,
		run.ExperimentID,
		run.Name,
		run.Status,
		run.Source,
		run.ComputeTarget,
		run.EntryPoint,
		run.GitCommit,
		run.User,
		run.ArtifactRoot,
		paramsJSON,
		tagsJSON,
		run.StartedAt,
		run.EndedAt,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := scanRun(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("run")
		}
		return nil, err
	}

	return run, nil
}

// UpdateStatus transitions a run's status. The ended_at timestamp is set
// when the new status is terminal.
func (r *RunRepository) UpdateStatus(ctx context.Context, id string, status domain.RunStatus, endedAt *time.Time) error {
	query := `
		UPDATE runs
		SET status = $2, ended_at = COALESCE($3, ended_at), updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, status, endedAt)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("run")
	}

	return nil
}

// MergeParams merges new parameters into a run's params map
func (r *RunRepository) MergeParams(ctx context.Context, id string, params map[string]string) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	query := `
		UPDATE runs
		SET params = params || $2::jsonb, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, paramsJSON)
	if err != nil {
		return fmt.Errorf("failed to merge run params: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("run")
	}

	return nil
}

// MergeTags merges new tags into a run's tags map
func (r *RunRepository) MergeTags(ctx context.Context, id string, tags map[string]string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		UPDATE runs
		SET tags = tags || $2::jsonb, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, tagsJSON)
	if err != nil {
		return fmt.Errorf("failed to merge run tags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("run")
	}

	return nil
}

// DeleteTag removes a single tag from a run
func (r *RunRepository) DeleteTag(ctx context.Context, id string, key string) error {
	query := `
		UPDATE runs
		SET tags = tags - $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, key)
	if err != nil {
		return fmt.Errorf("failed to delete run tag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("run")
	}

	return nil
}

// Delete permanently removes a run
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM runs WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("run")
	}

	return nil
}

// Search retrieves runs matching the filter, ordered by start time
func (r *RunRepository) Search(ctx context.Context, filter *domain.RunFilter, limit, offset int) (*domain.RunList, error) {
	conditions := []string{"experiment_id = $1"}
	args := []interface{}{filter.ExperimentID}
	argNum := 2

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM runs %s", whereClause)
	var totalCount int64
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	order := "DESC"
	if filter.Ascending {
		order = "ASC"
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s FROM runs
		%s
		ORDER BY started_at %s
		LIMIT $%d OFFSET $%d
	`, runColumns, whereClause, order, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return &domain.RunList{
		Runs:       runs,
		TotalCount: totalCount,
		HasMore:    int64(offset+len(runs)) < totalCount,
	}, nil
}

// ListActiveByExperiment retrieves non-terminal runs for an experiment
func (r *RunRepository) ListActiveByExperiment(ctx context.Context, experimentID uuid.UUID) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + ` FROM runs
		WHERE experiment_id = $1 AND status IN ('scheduled', 'running')
		ORDER BY started_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, nil
}

// DeleteOlderThan removes terminal runs that ended before the cutoff.
// Returns the IDs of the deleted runs so callers can clean up metric
// points and artifacts.
func (r *RunRepository) DeleteOlderThan(ctx context.Context, workspaceID uuid.UUID, cutoff time.Time) ([]string, error) {
	query := `
		DELETE FROM runs
		WHERE experiment_id IN (SELECT id FROM experiments WHERE workspace_id = $1)
		  AND status IN ('completed', 'failed', 'killed')
		  AND ended_at IS NOT NULL AND ended_at < $2
		RETURNING id
	`

	rows, err := r.db.Pool.Query(ctx, query, workspaceID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var paramsJSON, tagsJSON []byte

	if err := row.Scan(
		&run.ID,
		&run.ExperimentID,
		&run.Name,
		&run.Status,
		&run.Source,
		&run.ComputeTarget,
		&run.EntryPoint,
		&run.GitCommit,
		&run.User,
		&run.ArtifactRoot,
		&paramsJSON,
		&tagsJSON,
		&run.StartedAt,
		&run.EndedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if len(paramsJSON) > 0 {
		_ = json.Unmarshal(paramsJSON, &run.Params)
	}
	if len(tagsJSON) > 0 {
		_ = json.Unmarshal(tagsJSON, &run.Tags)
	}

	return &run, nil
}
