package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/pkg/pagination"
	"github.com/mlyard/mlyard/internal/storage"
)

// ExperimentRepository defines experiment persistence operations
type ExperimentRepository interface {
	Create(ctx context.Context, exp *domain.Experiment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Experiment, error)
	GetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.Experiment, error)
	Update(ctx context.Context, exp *domain.Experiment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter *domain.ExperimentFilter, limit, offset int) (*domain.ExperimentList, error)
}

// ExperimentService handles experiment operations
type ExperimentService struct {
	repo          ExperimentRepository
	workspaceRepo WorkspaceRepository
}

// NewExperimentService creates a new experiment service
func NewExperimentService(repo ExperimentRepository, workspaceRepo WorkspaceRepository) *ExperimentService {
	return &ExperimentService{
		repo:          repo,
		workspaceRepo: workspaceRepo,
	}
}

// Create creates a new experiment in a workspace
func (s *ExperimentService) Create(ctx context.Context, workspaceID uuid.UUID, input *domain.ExperimentInput) (*domain.Experiment, error) {
	if _, err := s.workspaceRepo.GetByID(ctx, workspaceID); err != nil {
		return nil, err
	}

	now := time.Now()
	exp := &domain.Experiment{
		ID:             uuid.New(),
		WorkspaceID:    workspaceID,
		Name:           input.Name,
		Description:    input.Description,
		LifecycleStage: domain.LifecycleStageActive,
		ArtifactRoot:   input.ArtifactRoot,
		Tags:           input.Tags,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if exp.ArtifactRoot == "" {
		exp.ArtifactRoot = fmt.Sprintf("experiments/%s", exp.ID)
	}

	if err := s.repo.Create(ctx, exp); err != nil {
		return nil, err
	}

	return exp, nil
}

// GetOrCreate returns the experiment with the given name, creating it if
// it does not exist. Clients call this on every script start.
func (s *ExperimentService) GetOrCreate(ctx context.Context, workspaceID uuid.UUID, input *domain.ExperimentInput) (*domain.Experiment, error) {
	exp, err := s.repo.GetByName(ctx, workspaceID, input.Name)
	if err == nil {
		if exp.LifecycleStage == domain.LifecycleStageDeleted {
			return nil, apperrors.Conflict("experiment with this name is archived")
		}
		return exp, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	exp, err = s.Create(ctx, workspaceID, input)
	if err != nil {
		// Lost a create race; fetch the winner
		if apperrors.IsConflict(err) {
			return s.repo.GetByName(ctx, workspaceID, input.Name)
		}
		return nil, err
	}

	return exp, nil
}

// Get retrieves an experiment by ID
func (s *ExperimentService) Get(ctx context.Context, id uuid.UUID) (*domain.Experiment, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByName retrieves an experiment by workspace and name
func (s *ExperimentService) GetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.Experiment, error) {
	return s.repo.GetByName(ctx, workspaceID, name)
}

// Update updates an experiment's mutable fields
func (s *ExperimentService) Update(ctx context.Context, id uuid.UUID, input *domain.ExperimentUpdateInput) (*domain.Experiment, error) {
	exp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if exp.LifecycleStage == domain.LifecycleStageDeleted {
		return nil, apperrors.Conflict("experiment is archived")
	}

	if input.Name != nil {
		exp.Name = *input.Name
	}
	if input.Description != nil {
		exp.Description = *input.Description
	}
	if input.Tags != nil {
		if exp.Tags == nil {
			exp.Tags = make(map[string]string)
		}
		for k, v := range input.Tags {
			exp.Tags[k] = v
		}
	}

	if err := s.repo.Update(ctx, exp); err != nil {
		return nil, err
	}

	return exp, nil
}

// Archive moves an experiment to the deleted lifecycle stage. Runs and
// artifacts are kept until retention cleanup removes them.
func (s *ExperimentService) Archive(ctx context.Context, id uuid.UUID) error {
	exp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if exp.LifecycleStage == domain.LifecycleStageDeleted {
		return nil
	}

	exp.LifecycleStage = domain.LifecycleStageDeleted
	return s.repo.Update(ctx, exp)
}

// Restore moves an archived experiment back to the active stage
func (s *ExperimentService) Restore(ctx context.Context, id uuid.UUID) error {
	exp, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if exp.LifecycleStage == domain.LifecycleStageActive {
		return nil
	}

	exp.LifecycleStage = domain.LifecycleStageActive
	return s.repo.Update(ctx, exp)
}

// List retrieves experiments matching the filter
func (s *ExperimentService) List(ctx context.Context, filter *domain.ExperimentFilter, page pagination.PageParams) (*domain.ExperimentList, error) {
	return s.repo.List(ctx, filter, page.Limit, page.Offset)
}

// ArtifactRootFor returns the object-store prefix a run in this
// experiment should write artifacts under
func ArtifactRootFor(runID string) string {
	return storage.RunRoot(runID)
}
