package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/pkg/database"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
)

// ExperimentRepository handles experiment data operations in PostgreSQL
type ExperimentRepository struct {
	db *database.PostgresDB
}

// NewExperimentRepository creates a new experiment repository
func NewExperimentRepository(db *database.PostgresDB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

// Create creates a new experiment
func (r *ExperimentRepository) Create(ctx context.Context, exp *domain.Experiment) error {
	tagsJSON, err := json.Marshal(exp.Tags)
	if err != nil {
		tagsJSON = []byte("{}")
	}

	query := `
		INSERT INTO experiments (id, workspace_id, name, description, lifecycle_stage, artifact_root, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		exp.ID,
		exp.WorkspaceID,
		exp.Name,
		exp.Description,
		exp.LifecycleStage,
		exp.ArtifactRoot,
		tagsJSON,
		exp.CreatedAt,
		exp.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.Conflict("experiment name already exists in workspace")
		}
		return fmt.Errorf("failed to create experiment: %w", err)
	}

	return nil
}

// GetByID retrieves an experiment by ID
func (r *ExperimentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Experiment, error) {
	query := `
		SELECT id, workspace_id, name, description, lifecycle_stage, artifact_root, tags, created_at, updated_at
		FROM experiments
		WHERE id = $1
	`

	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByName retrieves an experiment by workspace and name
func (r *ExperimentRepository) GetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.Experiment, error) {
	query := `
		SELECT id, workspace_id, name, description, lifecycle_stage, artifact_root, tags, created_at, updated_at
		FROM experiments
		WHERE workspace_id = $1 AND name = $2
	`

	return r.scanOne(r.db.Pool.QueryRow(ctx, query, workspaceID, name))
}

// Update updates an experiment
func (r *ExperimentRepository) Update(ctx context.Context, exp *domain.Experiment) error {
	tagsJSON, err := json.Marshal(exp.Tags)
	if err != nil {
		tagsJSON = []byte("{}")
	}

	query := `
		UPDATE experiments
		SET name = $2, description = $3, lifecycle_stage = $4, tags = $5, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		exp.ID,
		exp.Name,
		exp.Description,
		exp.LifecycleStage,
		tagsJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.Conflict("experiment name already exists in workspace")
		}
		return fmt.Errorf("failed to update experiment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("experiment")
	}

	return nil
}

// Delete permanently removes an experiment
func (r *ExperimentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM experiments WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("experiment")
	}

	return nil
}

// List retrieves experiments matching the filter
func (r *ExperimentRepository) List(ctx context.Context, filter *domain.ExperimentFilter, limit, offset int) (*domain.ExperimentList, error) {
	conditions := []string{"workspace_id = $1"}
	args := []interface{}{filter.WorkspaceID}
	argNum := 2

	if filter.LifecycleStage != nil {
		conditions = append(conditions, fmt.Sprintf("lifecycle_stage = $%d", argNum))
		args = append(args, *filter.LifecycleStage)
		argNum++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM experiments %s", whereClause)
	var totalCount int64
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count experiments: %w", err)
	}

	dataQuery := fmt.Sprintf(`
		SELECT id, workspace_id, name, description, lifecycle_stage, artifact_root, tags, created_at, updated_at
		FROM experiments
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []domain.Experiment
	for rows.Next() {
		exp, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, *exp)
	}

	return &domain.ExperimentList{
		Experiments: experiments,
		TotalCount:  totalCount,
		HasMore:     int64(offset+len(experiments)) < totalCount,
	}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ExperimentRepository) scanOne(row rowScanner) (*domain.Experiment, error) {
	exp, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("experiment")
		}
		return nil, err
	}
	return exp, nil
}

func (r *ExperimentRepository) scanRow(row rowScanner) (*domain.Experiment, error) {
	var exp domain.Experiment
	var tagsJSON []byte

	if err := row.Scan(
		&exp.ID,
		&exp.WorkspaceID,
		&exp.Name,
		&exp.Description,
		&exp.LifecycleStage,
		&exp.ArtifactRoot,
		&tagsJSON,
		&exp.CreatedAt,
		&exp.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan experiment: %w", err)
	}

	if len(tagsJSON) > 0 {
		_ = json.Unmarshal(tagsJSON, &exp.Tags)
	}

	return &exp, nil
}
