package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/pkg/database"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
)

// WorkspaceRepository handles workspace data operations in PostgreSQL
type WorkspaceRepository struct {
	db *database.PostgresDB
}

// NewWorkspaceRepository creates a new workspace repository
func NewWorkspaceRepository(db *database.PostgresDB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// Create creates a new workspace
func (r *WorkspaceRepository) Create(ctx context.Context, ws *domain.Workspace) error {
	query := `
		INSERT INTO workspaces (id, name, slug, description, settings, retention_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		ws.ID,
		ws.Name,
		ws.Slug,
		ws.Description,
		ws.Settings,
		ws.RetentionDays,
		ws.CreatedAt,
		ws.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.Conflict("workspace slug already exists")
		}
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	return nil
}

// GetByID retrieves a workspace by ID
func (r *WorkspaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workspace, error) {
	query := `
		SELECT id, name, slug, description, settings, retention_days, created_at, updated_at
		FROM workspaces
		WHERE id = $1
	`

	var ws domain.Workspace
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&ws.ID,
		&ws.Name,
		&ws.Slug,
		&ws.Description,
		&ws.Settings,
		&ws.RetentionDays,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("workspace")
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	return &ws, nil
}

// GetBySlug retrieves a workspace by slug
func (r *WorkspaceRepository) GetBySlug(ctx context.Context, slug string) (*domain.Workspace, error) {
	query := `
		SELECT id, name, slug, description, settings, retention_days, created_at, updated_at
		FROM workspaces
		WHERE slug = $1
	`

	var ws domain.Workspace
	err := r.db.Pool.QueryRow(ctx, query, slug).Scan(
		&ws.ID,
		&ws.Name,
		&ws.Slug,
		&ws.Description,
		&ws.Settings,
		&ws.RetentionDays,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("workspace")
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	return &ws, nil
}

// Update updates a workspace
func (r *WorkspaceRepository) Update(ctx context.Context, ws *domain.Workspace) error {
	query := `
		UPDATE workspaces
		SET name = $2, description = $3, settings = $4, retention_days = $5, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		ws.ID,
		ws.Name,
		ws.Description,
		ws.Settings,
		ws.RetentionDays,
	)
	if err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("workspace")
	}

	return nil
}

// Delete deletes a workspace
func (r *WorkspaceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM workspaces WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("workspace")
	}

	return nil
}

// List retrieves all workspaces ordered by name
func (r *WorkspaceRepository) List(ctx context.Context) ([]domain.Workspace, error) {
	query := `
		SELECT id, name, slug, description, settings, retention_days, created_at, updated_at
		FROM workspaces
		ORDER BY name
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []domain.Workspace
	for rows.Next() {
		var ws domain.Workspace
		if err := rows.Scan(
			&ws.ID,
			&ws.Name,
			&ws.Slug,
			&ws.Description,
			&ws.Settings,
			&ws.RetentionDays,
			&ws.CreatedAt,
			&ws.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		workspaces = append(workspaces, ws)
	}

	return workspaces, nil
}

// SlugExists checks if a slug is already taken
func (r *WorkspaceRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM workspaces WHERE slug = $1)`

	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}

	return exists, nil
}
