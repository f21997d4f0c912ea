package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
)

// MockModelRepository is a mock implementation of ModelRepository
type MockModelRepository struct {
	mock.Mock
}

func (m *MockModelRepository) CreateModel(ctx context.Context, model *domain.RegisteredModel) error {
	args := m.Called(ctx, model)
	return args.Error(0)
}

func (m *MockModelRepository) GetModelByID(ctx context.Context, id uuid.UUID) (*domain.RegisteredModel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RegisteredModel), args.Error(1)
}

func (m *MockModelRepository) GetModelByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.RegisteredModel, error) {
	args := m.Called(ctx, workspaceID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RegisteredModel), args.Error(1)
}

func (m *MockModelRepository) DeleteModel(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockModelRepository) ListModels(ctx context.Context, filter *domain.RegisteredModelFilter, limit, offset int) (*domain.RegisteredModelList, error) {
	args := m.Called(ctx, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RegisteredModelList), args.Error(1)
}

func (m *MockModelRepository) CreateVersion(ctx context.Context, mv *domain.ModelVersion) error {
	args := m.Called(ctx, mv)
	return args.Error(0)
}

func (m *MockModelRepository) GetVersionByID(ctx context.Context, id uuid.UUID) (*domain.ModelVersion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ModelVersion), args.Error(1)
}

func (m *MockModelRepository) GetVersion(ctx context.Context, modelID uuid.UUID, version int) (*domain.ModelVersion, error) {
	args := m.Called(ctx, modelID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ModelVersion), args.Error(1)
}

func (m *MockModelRepository) ListVersions(ctx context.Context, modelID uuid.UUID) ([]domain.ModelVersion, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ModelVersion), args.Error(1)
}

func (m *MockModelRepository) LatestVersionsByStage(ctx context.Context, modelID uuid.UUID) ([]domain.ModelVersion, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ModelVersion), args.Error(1)
}

func (m *MockModelRepository) UpdateVersionStage(ctx context.Context, id uuid.UUID, stage domain.ModelStage) error {
	args := m.Called(ctx, id, stage)
	return args.Error(0)
}

func (m *MockModelRepository) ArchiveStageVersions(ctx context.Context, modelID uuid.UUID, stage domain.ModelStage) (int64, error) {
	args := m.Called(ctx, modelID, stage)
	return args.Get(0).(int64), args.Error(1)
}

func TestModelService_CreateVersion(t *testing.T) {
	modelID := uuid.New()

	t.Run("creates version from completed run", func(t *testing.T) {
		modelRepo := new(MockModelRepository)
		runRepo := new(MockRunRepository)
		svc := NewModelService(modelRepo, runRepo)

		modelRepo.On("GetModelByID", mock.Anything, modelID).Return(&domain.RegisteredModel{ID: modelID}, nil)
		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusCompleted,
		}, nil)
		modelRepo.On("CreateVersion", mock.Anything, mock.MatchedBy(func(mv *domain.ModelVersion) bool {
			return mv.ModelID == modelID &&
				mv.RunID == testRunID &&
				mv.Stage == domain.ModelStageNone &&
				len(mv.InputShape) == 3
		})).Return(nil)

		mv, err := svc.CreateVersion(context.Background(), modelID, &domain.ModelVersionInput{
			RunID:        testRunID,
			ArtifactPath: "model/sklearn_mnist.pkl",
			InputShape:   []int{1, 28, 28},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ModelStageNone, mv.Stage)
		modelRepo.AssertExpectations(t)
	})

	t.Run("rejects unfinished run", func(t *testing.T) {
		modelRepo := new(MockModelRepository)
		runRepo := new(MockRunRepository)
		svc := NewModelService(modelRepo, runRepo)

		modelRepo.On("GetModelByID", mock.Anything, modelID).Return(&domain.RegisteredModel{ID: modelID}, nil)
		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusRunning,
		}, nil)

		_, err := svc.CreateVersion(context.Background(), modelID, &domain.ModelVersionInput{
			RunID:        testRunID,
			ArtifactPath: "model",
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("rejects unknown model", func(t *testing.T) {
		modelRepo := new(MockModelRepository)
		svc := NewModelService(modelRepo, new(MockRunRepository))

		modelRepo.On("GetModelByID", mock.Anything, modelID).Return(nil, apperrors.NotFound("model"))

		_, err := svc.CreateVersion(context.Background(), modelID, &domain.ModelVersionInput{
			RunID:        testRunID,
			ArtifactPath: "model",
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestModelService_TransitionStage(t *testing.T) {
	modelID := uuid.New()
	versionID := uuid.New()

	t.Run("promotes to production archiving existing", func(t *testing.T) {
		modelRepo := new(MockModelRepository)
		svc := NewModelService(modelRepo, new(MockRunRepository))

		modelRepo.On("GetVersion", mock.Anything, modelID, 2).Return(&domain.ModelVersion{
			ID:      versionID,
			ModelID: modelID,
			Version: 2,
			Stage:   domain.ModelStageStaging,
		}, nil)
		modelRepo.On("ArchiveStageVersions", mock.Anything, modelID, domain.ModelStageProduction).Return(int64(1), nil)
		modelRepo.On("UpdateVersionStage", mock.Anything, versionID, domain.ModelStageProduction).Return(nil)

		mv, err := svc.TransitionStage(context.Background(), modelID, 2, &domain.StageTransitionInput{
			Stage:           domain.ModelStageProduction,
			ArchiveExisting: true,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ModelStageProduction, mv.Stage)
		modelRepo.AssertExpectations(t)
	})

	t.Run("same stage is a no-op", func(t *testing.T) {
		modelRepo := new(MockModelRepository)
		svc := NewModelService(modelRepo, new(MockRunRepository))

		modelRepo.On("GetVersion", mock.Anything, modelID, 1).Return(&domain.ModelVersion{
			ID:      versionID,
			ModelID: modelID,
			Version: 1,
			Stage:   domain.ModelStageStaging,
		}, nil)

		mv, err := svc.TransitionStage(context.Background(), modelID, 1, &domain.StageTransitionInput{
			Stage: domain.ModelStageStaging,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ModelStageStaging, mv.Stage)
		modelRepo.AssertNotCalled(t, "UpdateVersionStage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects unknown stage", func(t *testing.T) {
		svc := NewModelService(new(MockModelRepository), new(MockRunRepository))

		_, err := svc.TransitionStage(context.Background(), modelID, 1, &domain.StageTransitionInput{
			Stage: domain.ModelStage("primordial"),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestModelService_Get(t *testing.T) {
	t.Run("includes latest versions per stage", func(t *testing.T) {
		modelRepo := new(MockModelRepository)
		svc := NewModelService(modelRepo, new(MockRunRepository))

		modelID := uuid.New()
		modelRepo.On("GetModelByID", mock.Anything, modelID).Return(&domain.RegisteredModel{
			ID:        modelID,
			Name:      "sklearn-mnist",
			CreatedAt: time.Now(),
		}, nil)
		modelRepo.On("LatestVersionsByStage", mock.Anything, modelID).Return([]domain.ModelVersion{
			{ModelID: modelID, Version: 3, Stage: domain.ModelStageProduction},
			{ModelID: modelID, Version: 4, Stage: domain.ModelStageNone},
		}, nil)

		model, err := svc.Get(context.Background(), modelID)
		require.NoError(t, err)
		assert.Len(t, model.LatestVersions, 2)
	})
}
