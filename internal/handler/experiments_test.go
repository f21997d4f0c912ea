package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/service"
	"github.com/mlyard/mlyard/internal/testutil"
)

type MockExperimentRepository struct {
	mock.Mock
}

func (m *MockExperimentRepository) Create(ctx context.Context, exp *domain.Experiment) error {
	args := m.Called(ctx, exp)
	return args.Error(0)
}

func (m *MockExperimentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Experiment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) GetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.Experiment, error) {
	args := m.Called(ctx, workspaceID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Experiment), args.Error(1)
}

func (m *MockExperimentRepository) Update(ctx context.Context, exp *domain.Experiment) error {
	args := m.Called(ctx, exp)
	return args.Error(0)
}

func (m *MockExperimentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockExperimentRepository) List(ctx context.Context, filter *domain.ExperimentFilter, limit, offset int) (*domain.ExperimentList, error) {
	args := m.Called(ctx, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExperimentList), args.Error(1)
}

type MockWorkspaceRepository struct {
	mock.Mock
}

func (m *MockWorkspaceRepository) Create(ctx context.Context, ws *domain.Workspace) error {
	args := m.Called(ctx, ws)
	return args.Error(0)
}

func (m *MockWorkspaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workspace, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Workspace), args.Error(1)
}

func (m *MockWorkspaceRepository) GetBySlug(ctx context.Context, slug string) (*domain.Workspace, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Workspace), args.Error(1)
}

func (m *MockWorkspaceRepository) Update(ctx context.Context, ws *domain.Workspace) error {
	args := m.Called(ctx, ws)
	return args.Error(0)
}

func (m *MockWorkspaceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockWorkspaceRepository) List(ctx context.Context) ([]domain.Workspace, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Workspace), args.Error(1)
}

func (m *MockWorkspaceRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	args := m.Called(ctx, slug)
	return args.Bool(0), args.Error(1)
}

func newExperimentsApp(t *testing.T, workspaceID uuid.UUID) (*fiber.App, *MockExperimentRepository, *MockWorkspaceRepository) {
	t.Helper()

	expRepo := new(MockExperimentRepository)
	wsRepo := new(MockWorkspaceRepository)
	svc := service.NewExperimentService(expRepo, wsRepo)
	h := NewExperimentsHandler(svc, zap.NewNop())

	app := fiber.New()
	app.Use(testutil.WithWorkspace(workspaceID))
	app.Post("/v1/experiments", h.Create)
	app.Get("/v1/experiments", h.List)
	app.Get("/v1/experiments/by-name/:name", h.GetByName)
	app.Get("/v1/experiments/:experimentId", h.Get)
	app.Post("/v1/experiments/:experimentId/archive", h.Archive)

	return app, expRepo, wsRepo
}

func TestExperimentsCreate(t *testing.T) {
	workspaceID := uuid.New()

	t.Run("creates experiment", func(t *testing.T) {
		app, expRepo, wsRepo := newExperimentsApp(t, workspaceID)

		wsRepo.On("GetByID", mock.Anything, workspaceID).Return(&domain.Workspace{ID: workspaceID}, nil)
		expRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Experiment")).Return(nil)

		body, _ := json.Marshal(fiber.Map{"name": "mnist-baseline"})
		req := httptest.NewRequest(fiber.MethodPost, "/v1/experiments", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

		var exp domain.Experiment
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&exp))
		assert.Equal(t, "mnist-baseline", exp.Name)
		assert.Equal(t, workspaceID, exp.WorkspaceID)
		assert.Equal(t, domain.LifecycleStageActive, exp.LifecycleStage)
		assert.NotEmpty(t, exp.ArtifactRoot)
	})

	t.Run("rejects missing name", func(t *testing.T) {
		app, expRepo, _ := newExperimentsApp(t, workspaceID)

		req := httptest.NewRequest(fiber.MethodPost, "/v1/experiments", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		expRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("401 without workspace context", func(t *testing.T) {
		expRepo := new(MockExperimentRepository)
		svc := service.NewExperimentService(expRepo, new(MockWorkspaceRepository))
		h := NewExperimentsHandler(svc, zap.NewNop())

		app := fiber.New()
		app.Post("/v1/experiments", h.Create)

		body, _ := json.Marshal(fiber.Map{"name": "mnist-baseline"})
		req := httptest.NewRequest(fiber.MethodPost, "/v1/experiments", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		expRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("getOrCreate returns existing experiment", func(t *testing.T) {
		app, expRepo, _ := newExperimentsApp(t, workspaceID)

		existing := &domain.Experiment{
			ID:             uuid.New(),
			WorkspaceID:    workspaceID,
			Name:           "mnist-baseline",
			LifecycleStage: domain.LifecycleStageActive,
		}
		expRepo.On("GetByName", mock.Anything, workspaceID, "mnist-baseline").Return(existing, nil)

		body, _ := json.Marshal(fiber.Map{"name": "mnist-baseline"})
		req := httptest.NewRequest(fiber.MethodPost, "/v1/experiments?getOrCreate=true", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

		var exp domain.Experiment
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&exp))
		assert.Equal(t, existing.ID, exp.ID)
	})
}

func TestExperimentsGet(t *testing.T) {
	workspaceID := uuid.New()

	t.Run("returns experiment", func(t *testing.T) {
		app, expRepo, _ := newExperimentsApp(t, workspaceID)

		experimentID := uuid.New()
		expRepo.On("GetByID", mock.Anything, experimentID).Return(&domain.Experiment{
			ID:          experimentID,
			WorkspaceID: workspaceID,
			Name:        "mnist-baseline",
		}, nil)

		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/v1/experiments/"+experimentID.String(), nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("404 for unknown experiment", func(t *testing.T) {
		app, expRepo, _ := newExperimentsApp(t, workspaceID)

		experimentID := uuid.New()
		expRepo.On("GetByID", mock.Anything, experimentID).Return(nil, apperrors.NotFound("experiment"))

		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/v1/experiments/"+experimentID.String(), nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("400 for malformed id", func(t *testing.T) {
		app, _, _ := newExperimentsApp(t, workspaceID)

		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/v1/experiments/not-a-uuid", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestExperimentsList(t *testing.T) {
	workspaceID := uuid.New()
	app, expRepo, _ := newExperimentsApp(t, workspaceID)

	expRepo.On("List", mock.Anything, mock.MatchedBy(func(f *domain.ExperimentFilter) bool {
		return f.WorkspaceID == workspaceID && f.Search == "mnist"
	}), 10, 0).Return(&domain.ExperimentList{
		Experiments: []domain.Experiment{{Name: "mnist-baseline"}},
		TotalCount:  1,
	}, nil)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/v1/experiments?search=mnist&limit=10", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var list domain.ExperimentList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Experiments, 1)
	assert.Equal(t, int64(1), list.TotalCount)
}

func TestExperimentsArchive(t *testing.T) {
	workspaceID := uuid.New()
	app, expRepo, _ := newExperimentsApp(t, workspaceID)

	experimentID := uuid.New()
	expRepo.On("GetByID", mock.Anything, experimentID).Return(&domain.Experiment{
		ID:             experimentID,
		WorkspaceID:    workspaceID,
		LifecycleStage: domain.LifecycleStageActive,
	}, nil)
	expRepo.On("Update", mock.Anything, mock.MatchedBy(func(e *domain.Experiment) bool {
		return e.LifecycleStage == domain.LifecycleStageDeleted
	})).Return(nil)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/v1/experiments/"+experimentID.String()+"/archive", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	expRepo.AssertExpectations(t)
}
