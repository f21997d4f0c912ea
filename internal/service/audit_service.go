package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/pkg/logger"
	"github.com/mlyard/mlyard/internal/pkg/pagination"
)

// AuditRepository defines audit log data operations
type AuditRepository interface {
	Create(ctx context.Context, input *domain.AuditLogInput) (*domain.AuditLog, error)
	Get(ctx context.Context, workspaceID, logID uuid.UUID) (*domain.AuditLog, error)
	List(ctx context.Context, filter *domain.AuditLogFilter, limit, offset int) (*domain.AuditLogList, error)
}

// AuditService records and queries workspace audit trail entries
type AuditService struct {
	repo AuditRepository
}

// NewAuditService creates a new audit service
func NewAuditService(repo AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Log creates a new audit log entry
func (s *AuditService) Log(ctx context.Context, input *domain.AuditLogInput) (*domain.AuditLog, error) {
	return s.repo.Create(ctx, input)
}

// LogAction is a convenience method for logging with minimal parameters
func (s *AuditService) LogAction(
	ctx context.Context,
	workspaceID uuid.UUID,
	actorType string,
	actor string,
	action domain.AuditAction,
	resourceType domain.AuditResourceType,
	resourceID string,
	resourceName string,
	description string,
) error {
	_, err := s.repo.Create(ctx, &domain.AuditLogInput{
		WorkspaceID:  workspaceID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ResourceName: resourceName,
		Description:  description,
	})
	return err
}

// LogAsync records an entry without blocking the caller. Audit failures
// never fail the request that triggered them.
func (s *AuditService) LogAsync(input *domain.AuditLogInput) {
	go func() {
		if _, err := s.repo.Create(context.Background(), input); err != nil {
			logger.Warn("Failed to write audit log",
				zap.String("action", string(input.Action)),
				zap.Error(err))
		}
	}()
}

// Get retrieves a single audit log entry scoped to a workspace
func (s *AuditService) Get(ctx context.Context, workspaceID, logID uuid.UUID) (*domain.AuditLog, error) {
	return s.repo.Get(ctx, workspaceID, logID)
}

// List retrieves audit log entries matching the filter
func (s *AuditService) List(ctx context.Context, filter *domain.AuditLogFilter, page pagination.PageParams) (*domain.AuditLogList, error) {
	return s.repo.List(ctx, filter, page.Limit, page.Offset)
}
