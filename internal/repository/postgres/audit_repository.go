package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
)

// AuditRepository handles audit log data operations. It runs on its own
// sqlx connection so audit writes never share the main pgx pool.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create records a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, input *domain.AuditLogInput) (*domain.AuditLog, error) {
	id := uuid.New()
	now := time.Now()

	metadataJSON, err := json.Marshal(input.Metadata)
	if err != nil {
		metadataJSON = []byte("{}")
	}

	query := `
		INSERT INTO audit_logs (
			id, workspace_id, actor_type, actor, action, resource_type,
			resource_id, resource_name, description, metadata, ip_address, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.ExecContext(ctx, query,
		id, input.WorkspaceID, input.ActorType, input.Actor, input.Action, input.ResourceType,
		input.ResourceID, input.ResourceName, input.Description, metadataJSON, input.IPAddress, input.RequestID, now,
	)
	if err != nil {
		return nil, err
	}

	return &domain.AuditLog{
		ID:           id,
		WorkspaceID:  input.WorkspaceID,
		ActorType:    input.ActorType,
		Actor:        input.Actor,
		Action:       input.Action,
		ResourceType: input.ResourceType,
		ResourceID:   input.ResourceID,
		ResourceName: input.ResourceName,
		Description:  input.Description,
		Metadata:     input.Metadata,
		IPAddress:    input.IPAddress,
		RequestID:    input.RequestID,
		CreatedAt:    now,
	}, nil
}

// Get retrieves a single audit log entry
func (r *AuditRepository) Get(ctx context.Context, workspaceID, logID uuid.UUID) (*domain.AuditLog, error) {
	query := `
		SELECT id, workspace_id, actor_type, actor, action, resource_type,
			resource_id, resource_name, description, metadata, ip_address, request_id, created_at
		FROM audit_logs
		WHERE id = $1 AND workspace_id = $2`

	var log domain.AuditLog
	var metadataJSON []byte

	err := r.db.QueryRowContext(ctx, query, logID, workspaceID).Scan(
		&log.ID, &log.WorkspaceID, &log.ActorType, &log.Actor, &log.Action, &log.ResourceType,
		&log.ResourceID, &log.ResourceName, &log.Description, &metadataJSON, &log.IPAddress, &log.RequestID, &log.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("audit log")
	}
	if err != nil {
		return nil, err
	}

	if metadataJSON != nil {
		json.Unmarshal(metadataJSON, &log.Metadata)
	}

	return &log, nil
}

// List retrieves audit logs with filtering and pagination
func (r *AuditRepository) List(ctx context.Context, filter *domain.AuditLogFilter, limit, offset int) (*domain.AuditLogList, error) {
	conditions := []string{"workspace_id = $1"}
	args := []interface{}{filter.WorkspaceID}
	argNum := 2

	if filter.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argNum))
		args = append(args, *filter.Action)
		argNum++
	}

	if filter.ResourceType != nil {
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", argNum))
		args = append(args, *filter.ResourceType)
		argNum++
	}

	if filter.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argNum))
		args = append(args, *filter.Since)
		argNum++
	}

	if filter.Until != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argNum))
		args = append(args, *filter.Until)
		argNum++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	dataQuery := fmt.Sprintf(`
		SELECT id, workspace_id, actor_type, actor, action, resource_type,
			resource_id, resource_name, description, metadata, ip_address, request_id, created_at
		FROM audit_logs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var log domain.AuditLog
		var metadataJSON []byte

		if err := rows.Scan(
			&log.ID, &log.WorkspaceID, &log.ActorType, &log.Actor, &log.Action, &log.ResourceType,
			&log.ResourceID, &log.ResourceName, &log.Description, &metadataJSON, &log.IPAddress, &log.RequestID, &log.CreatedAt,
		); err != nil {
			return nil, err
		}

		if metadataJSON != nil {
			json.Unmarshal(metadataJSON, &log.Metadata)
		}

		logs = append(logs, log)
	}

	return &domain.AuditLogList{
		Logs:       logs,
		TotalCount: totalCount,
		HasMore:    int64(offset+len(logs)) < totalCount,
	}, nil
}

// DeleteOlderThan removes audit logs older than the cutoff
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, workspaceID uuid.UUID, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_logs WHERE workspace_id = $1 AND created_at < $2`,
		workspaceID, cutoff,
	)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
