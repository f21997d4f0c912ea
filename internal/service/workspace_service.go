package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mlyard/mlyard/internal/domain"
)

// WorkspaceRepository defines workspace persistence operations
type WorkspaceRepository interface {
	Create(ctx context.Context, ws *domain.Workspace) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workspace, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Workspace, error)
	Update(ctx context.Context, ws *domain.Workspace) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]domain.Workspace, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// WorkspaceService handles workspace operations
type WorkspaceService struct {
	repo WorkspaceRepository
}

// NewWorkspaceService creates a new workspace service
func NewWorkspaceService(repo WorkspaceRepository) *WorkspaceService {
	return &WorkspaceService{repo: repo}
}

// DefaultRetentionDays is applied to workspaces that do not set a
// retention window
const DefaultRetentionDays = 90

// Create creates a new workspace
func (s *WorkspaceService) Create(ctx context.Context, input *domain.WorkspaceInput) (*domain.Workspace, error) {
	slug := domain.GenerateSlug(input.Name)

	exists, err := s.repo.SlugExists(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}
	if exists {
		slug = fmt.Sprintf("%s-%s", slug, uuid.New().String()[:8])
	}

	retentionDays := DefaultRetentionDays
	if input.RetentionDays != nil {
		retentionDays = *input.RetentionDays
	}

	var settings string
	if input.Settings != nil {
		settings = *input.Settings
	}

	now := time.Now()
	ws := &domain.Workspace{
		ID:            uuid.New(),
		Name:          input.Name,
		Slug:          slug,
		Description:   input.Description,
		Settings:      settings,
		RetentionDays: retentionDays,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, ws); err != nil {
		return nil, err
	}

	return ws, nil
}

// Get retrieves a workspace by ID
func (s *WorkspaceService) Get(ctx context.Context, id uuid.UUID) (*domain.Workspace, error) {
	return s.repo.GetByID(ctx, id)
}

// GetBySlug retrieves a workspace by slug
func (s *WorkspaceService) GetBySlug(ctx context.Context, slug string) (*domain.Workspace, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// Update updates a workspace
func (s *WorkspaceService) Update(ctx context.Context, id uuid.UUID, input *domain.WorkspaceInput) (*domain.Workspace, error) {
	ws, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != "" {
		ws.Name = input.Name
	}
	if input.Description != "" {
		ws.Description = input.Description
	}
	if input.Settings != nil {
		ws.Settings = *input.Settings
	}
	if input.RetentionDays != nil {
		ws.RetentionDays = *input.RetentionDays
	}

	if err := s.repo.Update(ctx, ws); err != nil {
		return nil, err
	}

	return ws, nil
}

// Delete deletes a workspace
func (s *WorkspaceService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// List retrieves all workspaces
func (s *WorkspaceService) List(ctx context.Context) ([]domain.Workspace, error) {
	return s.repo.List(ctx)
}
