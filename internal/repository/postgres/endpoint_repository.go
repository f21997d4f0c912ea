package postgres

import (
	"context"
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

// EndpointRepository handles inference endpoint data operations in PostgreSQL
type EndpointRepository struct {
	db *database.PostgresDB
}

// NewEndpointRepository creates a new endpoint repository
func NewEndpointRepository(db *database.PostgresDB) *EndpointRepository {
	return &EndpointRepository{db: db}
}

const endpointColumns = `id, workspace_id, name, model_version_id, state, scoring_url, auth_token,
		cpu_cores, memory_gb, error, ready_at, created_at, updated_at`

// Create creates a new endpoint
func (r *EndpointRepository) Create(ctx context.Context, ep *domain.Endpoint) error {
	query := `
		INSERT INTO endpoints (` + endpointColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		ep.ID,
		ep.WorkspaceID,
		ep.Name,
		ep.ModelVersionID,
		ep.State,
		ep.ScoringURL,
		ep.AuthToken,
		ep.CPUCores,
		ep.MemoryGB,
		ep.Error,
		ep.ReadyAt,
		ep.CreatedAt,
		ep.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.Conflict("endpoint name already exists in workspace")
		}
		return fmt.Errorf("failed to create endpoint: %w", err)
	}

	return nil
}

// GetByID retrieves an endpoint by ID
func (r *EndpointRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE id = $1`

	return r.scanEndpoint(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByName retrieves an endpoint by workspace and name
func (r *EndpointRepository) GetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE workspace_id = $1 AND name = $2`

	return r.scanEndpoint(r.db.Pool.QueryRow(ctx, query, workspaceID, name))
}

// UpdateState transitions an endpoint's state. ready_at is stamped when
// the endpoint becomes ready.
func (r *EndpointRepository) UpdateState(ctx context.Context, id uuid.UUID, state domain.EndpointState, epErr string) error {
	var readyAt *time.Time
	if state == domain.EndpointStateReady {
		now := time.Now()
		readyAt = &now
	}

	query := `
		UPDATE endpoints
		SET state = $2, error = $3, ready_at = COALESCE($4, ready_at), updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, state, epErr, readyAt)
	if err != nil {
		return fmt.Errorf("failed to update endpoint state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("endpoint")
	}

	return nil
}

// UpdateModelVersion re-points an endpoint at a different model version
func (r *EndpointRepository) UpdateModelVersion(ctx context.Context, id, modelVersionID uuid.UUID) error {
	query := `
		UPDATE endpoints
		SET model_version_id = $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, modelVersionID)
	if err != nil {
		return fmt.Errorf("failed to update endpoint model version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("endpoint")
	}

	return nil
}

// Delete removes an endpoint record
func (r *EndpointRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM endpoints WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("endpoint")
	}

	return nil
}

// List retrieves endpoints matching the filter
func (r *EndpointRepository) List(ctx context.Context, filter *domain.EndpointFilter, limit, offset int) (*domain.EndpointList, error) {
	conditions := []string{"workspace_id = $1"}
	args := []interface{}{filter.WorkspaceID}
	argNum := 2

	if filter.State != nil {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argNum))
		args = append(args, *filter.State)
		argNum++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM endpoints %s", whereClause)
	var totalCount int64
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count endpoints: %w", err)
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s FROM endpoints
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, endpointColumns, whereClause, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []domain.Endpoint
	for rows.Next() {
		ep, err := r.scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *ep)
	}

	return &domain.EndpointList{
		Endpoints:  endpoints,
		TotalCount: totalCount,
		HasMore:    int64(offset+len(endpoints)) < totalCount,
	}, nil
}

func (r *EndpointRepository) scanEndpoint(row rowScanner) (*domain.Endpoint, error) {
	var ep domain.Endpoint

	if err := row.Scan(
		&ep.ID,
		&ep.WorkspaceID,
		&ep.Name,
		&ep.ModelVersionID,
		&ep.State,
		&ep.ScoringURL,
		&ep.AuthToken,
		&ep.CPUCores,
		&ep.MemoryGB,
		&ep.Error,
		&ep.ReadyAt,
		&ep.CreatedAt,
		&ep.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("endpoint")
		}
		return nil, fmt.Errorf("failed to scan endpoint: %w", err)
	}

	return &ep, nil
}
