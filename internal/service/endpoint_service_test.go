package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/tasks"
)

// MockEndpointRepository is a mock implementation of EndpointRepository
type MockEndpointRepository struct {
	mock.Mock
}

func (m *MockEndpointRepository) Create(ctx context.Context, ep *domain.Endpoint) error {
	args := m.Called(ctx, ep)
	return args.Error(0)
}

func (m *MockEndpointRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Endpoint), args.Error(1)
}

func (m *MockEndpointRepository) GetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.Endpoint, error) {
	args := m.Called(ctx, workspaceID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Endpoint), args.Error(1)
}

func (m *MockEndpointRepository) UpdateState(ctx context.Context, id uuid.UUID, state domain.EndpointState, epErr string) error {
	args := m.Called(ctx, id, state, epErr)
	return args.Error(0)
}

func (m *MockEndpointRepository) UpdateModelVersion(ctx context.Context, id, modelVersionID uuid.UUID) error {
	args := m.Called(ctx, id, modelVersionID)
	return args.Error(0)
}

func (m *MockEndpointRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEndpointRepository) List(ctx context.Context, filter *domain.EndpointFilter, limit, offset int) (*domain.EndpointList, error) {
	args := m.Called(ctx, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EndpointList), args.Error(1)
}

// MockEnqueuer is a mock implementation of tasks.Enqueuer
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(task, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

func TestEndpointService_Deploy(t *testing.T) {
	workspaceID := uuid.New()
	versionID := uuid.New()

	t.Run("creates pending endpoint and enqueues deployment", func(t *testing.T) {
		repo := new(MockEndpointRepository)
		modelRepo := new(MockModelRepository)
		enqueuer := new(MockEnqueuer)
		svc := NewEndpointService(repo, modelRepo, nil, enqueuer)

		modelRepo.On("GetVersionByID", mock.Anything, versionID).Return(&domain.ModelVersion{ID: versionID}, nil)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(ep *domain.Endpoint) bool {
			return ep.State == domain.EndpointStatePending &&
				ep.Name == "sklearn-mnist-svc" &&
				ep.ModelVersionID == versionID
		})).Return(nil)
		enqueuer.On("Enqueue", mock.MatchedBy(func(task *asynq.Task) bool {
			return task.Type() == tasks.TypeEndpointDeploy
		}), mock.Anything).Return(&asynq.TaskInfo{}, nil)

		ep, err := svc.Deploy(context.Background(), workspaceID, &domain.EndpointInput{
			Name:           "sklearn-mnist-svc",
			ModelVersionID: versionID.String(),
			ScoringURL:     "http://scorer.internal:8080/score",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.EndpointStatePending, ep.State)
		enqueuer.AssertExpectations(t)
	})

	t.Run("rejects unknown model version", func(t *testing.T) {
		repo := new(MockEndpointRepository)
		modelRepo := new(MockModelRepository)
		svc := NewEndpointService(repo, modelRepo, nil, nil)

		modelRepo.On("GetVersionByID", mock.Anything, versionID).Return(nil, apperrors.NotFound("model version"))

		_, err := svc.Deploy(context.Background(), workspaceID, &domain.EndpointInput{
			Name:           "svc",
			ModelVersionID: versionID.String(),
			ScoringURL:     "http://scorer.internal:8080/score",
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects malformed model version ID", func(t *testing.T) {
		svc := NewEndpointService(new(MockEndpointRepository), new(MockModelRepository), nil, nil)

		_, err := svc.Deploy(context.Background(), workspaceID, &domain.EndpointInput{
			Name:           "svc",
			ModelVersionID: "not-a-uuid",
			ScoringURL:     "http://scorer.internal:8080/score",
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestEndpointService_Teardown(t *testing.T) {
	endpointID := uuid.New()
	workspaceID := uuid.New()

	t.Run("marks deleting and enqueues teardown", func(t *testing.T) {
		repo := new(MockEndpointRepository)
		enqueuer := new(MockEnqueuer)
		svc := NewEndpointService(repo, new(MockModelRepository), nil, enqueuer)

		repo.On("GetByID", mock.Anything, endpointID).Return(&domain.Endpoint{
			ID:          endpointID,
			WorkspaceID: workspaceID,
			Name:        "sklearn-mnist-svc",
			State:       domain.EndpointStateReady,
		}, nil)
		repo.On("UpdateState", mock.Anything, endpointID, domain.EndpointStateDeleting, "").Return(nil)
		enqueuer.On("Enqueue", mock.MatchedBy(func(task *asynq.Task) bool {
			return task.Type() == tasks.TypeEndpointTeardown
		}), mock.Anything).Return(&asynq.TaskInfo{}, nil)

		err := svc.Teardown(context.Background(), endpointID)
		require.NoError(t, err)
		repo.AssertExpectations(t)
		enqueuer.AssertExpectations(t)
	})

	t.Run("rejects repeated teardown", func(t *testing.T) {
		repo := new(MockEndpointRepository)
		svc := NewEndpointService(repo, new(MockModelRepository), nil, nil)

		repo.On("GetByID", mock.Anything, endpointID).Return(&domain.Endpoint{
			ID:    endpointID,
			State: domain.EndpointStateDeleting,
		}, nil)

		err := svc.Teardown(context.Background(), endpointID)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestEndpointService_GetRoute(t *testing.T) {
	workspaceID := uuid.New()
	endpointID := uuid.New()
	versionID := uuid.New()

	t.Run("builds route from endpoint and model version", func(t *testing.T) {
		repo := new(MockEndpointRepository)
		modelRepo := new(MockModelRepository)
		svc := NewEndpointService(repo, modelRepo, nil, nil)

		repo.On("GetByName", mock.Anything, workspaceID, "sklearn-mnist-svc").Return(&domain.Endpoint{
			ID:             endpointID,
			WorkspaceID:    workspaceID,
			Name:           "sklearn-mnist-svc",
			ModelVersionID: versionID,
			State:          domain.EndpointStateReady,
			ScoringURL:     "http://scorer.internal:8080/score",
			AuthToken:      "token123",
		}, nil)
		modelRepo.On("GetVersionByID", mock.Anything, versionID).Return(&domain.ModelVersion{
			ID:         versionID,
			InputShape: []int{1, 28, 28},
		}, nil)

		route, err := svc.GetRoute(context.Background(), workspaceID, "sklearn-mnist-svc")
		require.NoError(t, err)
		assert.Equal(t, endpointID, route.EndpointID)
		assert.Equal(t, domain.EndpointStateReady, route.State)
		assert.Equal(t, []int{1, 28, 28}, route.InputShape)
		assert.Equal(t, "token123", route.AuthToken)
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		repo := new(MockEndpointRepository)
		svc := NewEndpointService(repo, new(MockModelRepository), nil, nil)

		repo.On("GetByName", mock.Anything, workspaceID, "missing").Return(nil, apperrors.NotFound("endpoint"))

		_, err := svc.GetRoute(context.Background(), workspaceID, "missing")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestEndpointService_UpdateModelVersion(t *testing.T) {
	endpointID := uuid.New()
	workspaceID := uuid.New()
	newVersionID := uuid.New()

	t.Run("re-points endpoint", func(t *testing.T) {
		repo := new(MockEndpointRepository)
		modelRepo := new(MockModelRepository)
		svc := NewEndpointService(repo, modelRepo, nil, nil)

		repo.On("GetByID", mock.Anything, endpointID).Return(&domain.Endpoint{
			ID:          endpointID,
			WorkspaceID: workspaceID,
			Name:        "svc",
			State:       domain.EndpointStateReady,
		}, nil)
		modelRepo.On("GetVersionByID", mock.Anything, newVersionID).Return(&domain.ModelVersion{ID: newVersionID}, nil)
		repo.On("UpdateModelVersion", mock.Anything, endpointID, newVersionID).Return(nil)

		_, err := svc.UpdateModelVersion(context.Background(), endpointID, &domain.EndpointUpdateInput{
			ModelVersionID: newVersionID.String(),
		})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("rejects while deleting", func(t *testing.T) {
		repo := new(MockEndpointRepository)
		svc := NewEndpointService(repo, new(MockModelRepository), nil, nil)

		repo.On("GetByID", mock.Anything, endpointID).Return(&domain.Endpoint{
			ID:    endpointID,
			State: domain.EndpointStateDeleting,
		}, nil)

		_, err := svc.UpdateModelVersion(context.Background(), endpointID, &domain.EndpointUpdateInput{
			ModelVersionID: newVersionID.String(),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})
}
