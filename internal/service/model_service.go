package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/pkg/pagination"
)

// ModelRepository defines model registry persistence operations
type ModelRepository interface {
	CreateModel(ctx context.Context, model *domain.RegisteredModel) error
	GetModelByID(ctx context.Context, id uuid.UUID) (*domain.RegisteredModel, error)
	GetModelByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.RegisteredModel, error)
	DeleteModel(ctx context.Context, id uuid.UUID) error
	ListModels(ctx context.Context, filter *domain.RegisteredModelFilter, limit, offset int) (*domain.RegisteredModelList, error)
	CreateVersion(ctx context.Context, mv *domain.ModelVersion) error
	GetVersionByID(ctx context.Context, id uuid.UUID) (*domain.ModelVersion, error)
	GetVersion(ctx context.Context, modelID uuid.UUID, version int) (*domain.ModelVersion, error)
	ListVersions(ctx context.Context, modelID uuid.UUID) ([]domain.ModelVersion, error)
	LatestVersionsByStage(ctx context.Context, modelID uuid.UUID) ([]domain.ModelVersion, error)
	UpdateVersionStage(ctx context.Context, id uuid.UUID, stage domain.ModelStage) error
	ArchiveStageVersions(ctx context.Context, modelID uuid.UUID, stage domain.ModelStage) (int64, error)
}

// ModelService handles model registry operations
type ModelService struct {
	repo    ModelRepository
	runRepo RunRepository
}

// NewModelService creates a new model service
func NewModelService(repo ModelRepository, runRepo RunRepository) *ModelService {
	return &ModelService{
		repo:    repo,
		runRepo: runRepo,
	}
}

// Register creates a new registered model in a workspace
func (s *ModelService) Register(ctx context.Context, workspaceID uuid.UUID, input *domain.RegisteredModelInput) (*domain.RegisteredModel, error) {
	now := time.Now()
	model := &domain.RegisteredModel{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        input.Name,
		Description: input.Description,
		Tags:        input.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateModel(ctx, model); err != nil {
		return nil, err
	}

	return model, nil
}

// Get retrieves a registered model with its latest version per stage
func (s *ModelService) Get(ctx context.Context, id uuid.UUID) (*domain.RegisteredModel, error) {
	model, err := s.repo.GetModelByID(ctx, id)
	if err != nil {
		return nil, err
	}

	latest, err := s.repo.LatestVersionsByStage(ctx, id)
	if err != nil {
		return nil, err
	}
	model.LatestVersions = latest

	return model, nil
}

// GetByName retrieves a registered model by workspace and name
func (s *ModelService) GetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.RegisteredModel, error) {
	model, err := s.repo.GetModelByName(ctx, workspaceID, name)
	if err != nil {
		return nil, err
	}

	latest, err := s.repo.LatestVersionsByStage(ctx, model.ID)
	if err != nil {
		return nil, err
	}
	model.LatestVersions = latest

	return model, nil
}

// List retrieves registered models matching the filter
func (s *ModelService) List(ctx context.Context, filter *domain.RegisteredModelFilter, page pagination.PageParams) (*domain.RegisteredModelList, error) {
	return s.repo.ListModels(ctx, filter, page.Limit, page.Offset)
}

// Delete removes a registered model and all its versions
func (s *ModelService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteModel(ctx, id)
}

// CreateVersion registers a new version of a model from a finished run
func (s *ModelService) CreateVersion(ctx context.Context, modelID uuid.UUID, input *domain.ModelVersionInput) (*domain.ModelVersion, error) {
	if _, err := s.repo.GetModelByID(ctx, modelID); err != nil {
		return nil, err
	}

	run, err := s.runRepo.GetByID(ctx, input.RunID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusCompleted {
		return nil, apperrors.Conflict("model versions can only be created from completed runs")
	}

	now := time.Now()
	mv := &domain.ModelVersion{
		ID:           uuid.New(),
		ModelID:      modelID,
		RunID:        input.RunID,
		ArtifactPath: input.ArtifactPath,
		Stage:        domain.ModelStageNone,
		Description:  input.Description,
		InputShape:   input.InputShape,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateVersion(ctx, mv); err != nil {
		return nil, err
	}

	return mv, nil
}

// GetVersion retrieves a model version by model ID and version number
func (s *ModelService) GetVersion(ctx context.Context, modelID uuid.UUID, version int) (*domain.ModelVersion, error) {
	return s.repo.GetVersion(ctx, modelID, version)
}

// GetVersionByID retrieves a model version by its ID
func (s *ModelService) GetVersionByID(ctx context.Context, id uuid.UUID) (*domain.ModelVersion, error) {
	return s.repo.GetVersionByID(ctx, id)
}

// ListVersions retrieves all versions of a model
func (s *ModelService) ListVersions(ctx context.Context, modelID uuid.UUID) ([]domain.ModelVersion, error) {
	if _, err := s.repo.GetModelByID(ctx, modelID); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, modelID)
}

// TransitionStage moves a model version to a new stage. Promoting to
// production can archive the versions currently there.
func (s *ModelService) TransitionStage(ctx context.Context, modelID uuid.UUID, version int, input *domain.StageTransitionInput) (*domain.ModelVersion, error) {
	if !domain.ValidModelStage(input.Stage) {
		return nil, apperrors.Validation(fmt.Sprintf("unknown stage %q", input.Stage))
	}

	mv, err := s.repo.GetVersion(ctx, modelID, version)
	if err != nil {
		return nil, err
	}

	if mv.Stage == input.Stage {
		return mv, nil
	}

	if input.ArchiveExisting && (input.Stage == domain.ModelStageProduction || input.Stage == domain.ModelStageStaging) {
		if _, err := s.repo.ArchiveStageVersions(ctx, modelID, input.Stage); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateVersionStage(ctx, mv.ID, input.Stage); err != nil {
		return nil, err
	}

	mv.Stage = input.Stage
	return mv, nil
}
