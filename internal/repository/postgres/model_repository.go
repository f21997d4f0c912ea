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

// ModelRepository handles model registry data operations in PostgreSQL
type ModelRepository struct {
	db *database.PostgresDB
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *database.PostgresDB) *ModelRepository {
	return &ModelRepository{db: db}
}

// CreateModel creates a new registered model
func (r *ModelRepository) CreateModel(ctx context.Context, model *domain.RegisteredModel) error {
	tagsJSON, err := json.Marshal(model.Tags)
	if err != nil {
		tagsJSON = []byte("{}")
	}

	query := `
		INSERT INTO registered_models (id, workspace_id, name, description, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		model.ID,
		model.WorkspaceID,
		model.Name,
		model.Description,
		tagsJSON,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.Conflict("model name already exists in workspace")
		}
		return fmt.Errorf("failed to create model: %w", err)
	}

	return nil
}

// GetModelByID retrieves a registered model by ID
func (r *ModelRepository) GetModelByID(ctx context.Context, id uuid.UUID) (*domain.RegisteredModel, error) {
	query := `
		SELECT id, workspace_id, name, description, tags, created_at, updated_at
		FROM registered_models
		WHERE id = $1
	`

	return r.scanModel(r.db.Pool.QueryRow(ctx, query, id))
}

// GetModelByName retrieves a registered model by workspace and name
func (r *ModelRepository) GetModelByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.RegisteredModel, error) {
	query := `
		SELECT id, workspace_id, name, description, tags, created_at, updated_at
		FROM registered_models
		WHERE workspace_id = $1 AND name = $2
	`

	return r.scanModel(r.db.Pool.QueryRow(ctx, query, workspaceID, name))
}

// DeleteModel deletes a registered model and its versions
func (r *ModelRepository) DeleteModel(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM registered_models WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("model")
	}

	return nil
}

// ListModels retrieves registered models matching the filter
func (r *ModelRepository) ListModels(ctx context.Context, filter *domain.RegisteredModelFilter, limit, offset int) (*domain.RegisteredModelList, error) {
	conditions := []string{"workspace_id = $1"}
	args := []interface{}{filter.WorkspaceID}
	argNum := 2

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM registered_models %s", whereClause)
	var totalCount int64
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count models: %w", err)
	}

	dataQuery := fmt.Sprintf(`
		SELECT id, workspace_id, name, description, tags, created_at, updated_at
		FROM registered_models
		%s
		ORDER BY name
		LIMIT $%d OFFSET $%d
	`, whereClause, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var models []domain.RegisteredModel
	for rows.Next() {
		model, err := r.scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, *model)
	}

	return &domain.RegisteredModelList{
		Models:     models,
		TotalCount: totalCount,
		HasMore:    int64(offset+len(models)) < totalCount,
	}, nil
}

// CreateVersion creates a new model version. The version number is
// assigned atomically as max(version)+1 within the model.
func (r *ModelRepository) CreateVersion(ctx context.Context, mv *domain.ModelVersion) error {
	shapeJSON, err := json.Marshal(mv.InputShape)
	if err != nil {
		shapeJSON = []byte("null")
	}

	query := `
		INSERT INTO model_versions (id, model_id, version, run_id, artifact_path, stage, description, input_shape, created_at, updated_at)
		SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, $5, $6, $7, $8, $9
		FROM model_versions
		WHERE model_id = $2
		RETURNING version
	`

	err = r.db.Pool.QueryRow(ctx, query,
		mv.ID,
		mv.ModelID,
		mv.RunID,
		mv.ArtifactPath,
		mv.Stage,
		mv.Description,
		shapeJSON,
		mv.CreatedAt,
		mv.UpdatedAt,
	).Scan(&mv.Version)
	if err != nil {
		return fmt.Errorf("failed to create model version: %w", err)
	}

	return nil
}

// GetVersionByID retrieves a model version by ID
func (r *ModelRepository) GetVersionByID(ctx context.Context, id uuid.UUID) (*domain.ModelVersion, error) {
	query := `
		SELECT id, model_id, version, run_id, artifact_path, stage, description, input_shape, created_at, updated_at
		FROM model_versions
		WHERE id = $1
	`

	return r.scanVersion(r.db.Pool.QueryRow(ctx, query, id))
}

// GetVersion retrieves a model version by model ID and version number
func (r *ModelRepository) GetVersion(ctx context.Context, modelID uuid.UUID, version int) (*domain.ModelVersion, error) {
	query := `
		SELECT id, model_id, version, run_id, artifact_path, stage, description, input_shape, created_at, updated_at
		FROM model_versions
		WHERE model_id = $1 AND version = $2
	`

	return r.scanVersion(r.db.Pool.QueryRow(ctx, query, modelID, version))
}

// ListVersions retrieves all versions of a model, newest first
func (r *ModelRepository) ListVersions(ctx context.Context, modelID uuid.UUID) ([]domain.ModelVersion, error) {
	query := `
		SELECT id, model_id, version, run_id, artifact_path, stage, description, input_shape, created_at, updated_at
		FROM model_versions
		WHERE model_id = $1
		ORDER BY version DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.ModelVersion
	for rows.Next() {
		mv, err := r.scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *mv)
	}

	return versions, nil
}

// LatestVersionsByStage retrieves the newest version per stage for a model
func (r *ModelRepository) LatestVersionsByStage(ctx context.Context, modelID uuid.UUID) ([]domain.ModelVersion, error) {
	query := `
		SELECT DISTINCT ON (stage)
			id, model_id, version, run_id, artifact_path, stage, description, input_shape, created_at, updated_at
		FROM model_versions
		WHERE model_id = $1
		ORDER BY stage, version DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.ModelVersion
	for rows.Next() {
		mv, err := r.scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *mv)
	}

	return versions, nil
}

// UpdateVersionStage sets the stage of a model version
func (r *ModelRepository) UpdateVersionStage(ctx context.Context, id uuid.UUID, stage domain.ModelStage) error {
	query := `
		UPDATE model_versions
		SET stage = $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, stage)
	if err != nil {
		return fmt.Errorf("failed to update version stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("model version")
	}

	return nil
}

// ArchiveStageVersions moves every version of a model currently in the
// given stage to archived. Returns the number of versions archived.
func (r *ModelRepository) ArchiveStageVersions(ctx context.Context, modelID uuid.UUID, stage domain.ModelStage) (int64, error) {
	query := `
		UPDATE model_versions
		SET stage = 'archived', updated_at = NOW()
		WHERE model_id = $1 AND stage = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, modelID, stage)
	if err != nil {
		return 0, fmt.Errorf("failed to archive versions: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *ModelRepository) scanModel(row rowScanner) (*domain.RegisteredModel, error) {
	var model domain.RegisteredModel
	var tagsJSON []byte

	if err := row.Scan(
		&model.ID,
		&model.WorkspaceID,
		&model.Name,
		&model.Description,
		&tagsJSON,
		&model.CreatedAt,
		&model.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("model")
		}
		return nil, fmt.Errorf("failed to scan model: %w", err)
	}

	if len(tagsJSON) > 0 {
		_ = json.Unmarshal(tagsJSON, &model.Tags)
	}

	return &model, nil
}

func (r *ModelRepository) scanVersion(row rowScanner) (*domain.ModelVersion, error) {
	var mv domain.ModelVersion
	var shapeJSON []byte

	if err := row.Scan(
		&mv.ID,
		&mv.ModelID,
		&mv.Version,
		&mv.RunID,
		&mv.ArtifactPath,
		&mv.Stage,
		&mv.Description,
		&shapeJSON,
		&mv.CreatedAt,
		&mv.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("model version")
		}
		return nil, fmt.Errorf("failed to scan model version: %w", err)
	}

	if len(shapeJSON) > 0 {
		_ = json.Unmarshal(shapeJSON, &mv.InputShape)
	}

	return &mv, nil
}
