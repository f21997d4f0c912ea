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
	"github.com/mlyard/mlyard/internal/pkg/pagination"
)

func testPage() pagination.PageParams {
	return pagination.Normalize(0, 0)
}

// MockRunRepository is a mock implementation of RunRepository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *domain.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Run), args.Error(1)
}

func (m *MockRunRepository) UpdateStatus(ctx context.Context, id string, status domain.RunStatus, endedAt *time.Time) error {
	args := m.Called(ctx, id, status, endedAt)
	return args.Error(0)
}

func (m *MockRunRepository) MergeParams(ctx context.Context, id string, params map[string]string) error {
	args := m.Called(ctx, id, params)
	return args.Error(0)
}

func (m *MockRunRepository) MergeTags(ctx context.Context, id string, tags map[string]string) error {
	args := m.Called(ctx, id, tags)
	return args.Error(0)
}

func (m *MockRunRepository) DeleteTag(ctx context.Context, id string, key string) error {
	args := m.Called(ctx, id, key)
	return args.Error(0)
}

func (m *MockRunRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRunRepository) Search(ctx context.Context, filter *domain.RunFilter, limit, offset int) (*domain.RunList, error) {
	args := m.Called(ctx, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RunList), args.Error(1)
}

// MockMetricRepository is a mock implementation of MetricRepository
type MockMetricRepository struct {
	mock.Mock
}

func (m *MockMetricRepository) InsertBatch(ctx context.Context, points []domain.MetricPoint) error {
	args := m.Called(ctx, points)
	return args.Error(0)
}

func (m *MockMetricRepository) GetHistory(ctx context.Context, runID, name string) ([]domain.MetricPoint, error) {
	args := m.Called(ctx, runID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MetricPoint), args.Error(1)
}

func (m *MockMetricRepository) GetLatest(ctx context.Context, runID string) ([]domain.LatestMetric, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LatestMetric), args.Error(1)
}

func (m *MockMetricRepository) GetLatestForRuns(ctx context.Context, runIDs []string, name string) (map[string]float64, error) {
	args := m.Called(ctx, runIDs, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

func (m *MockMetricRepository) ListNames(ctx context.Context, runID string) ([]string, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockMetricRepository) DeleteByRunIDs(ctx context.Context, runIDs []string) error {
	args := m.Called(ctx, runIDs)
	return args.Error(0)
}

// MockExperimentRepository is a mock implementation of ExperimentRepository
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

const testRunID = "0123456789abcdef0123456789abcdef"

func newTestRunService(runRepo *MockRunRepository, metricRepo *MockMetricRepository, expRepo *MockExperimentRepository) *RunService {
	return NewRunService(runRepo, metricRepo, expRepo, nil, nil, nil, false)
}

func activeExperiment(id uuid.UUID) *domain.Experiment {
	return &domain.Experiment{
		ID:             id,
		WorkspaceID:    uuid.New(),
		Name:           "mnist-baseline",
		LifecycleStage: domain.LifecycleStageActive,
	}
}

func TestRunService_Create(t *testing.T) {
	t.Run("creates running local run", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		expRepo := new(MockExperimentRepository)
		svc := newTestRunService(runRepo, new(MockMetricRepository), expRepo)

		expID := uuid.New()
		expRepo.On("GetByID", mock.Anything, expID).Return(activeExperiment(expID), nil)
		runRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Run")).Return(nil)

		run, err := svc.Create(context.Background(), expID, &domain.RunInput{Name: "epoch-sweep"}, domain.RunSourceLocal)
		require.NoError(t, err)

		assert.Len(t, run.ID, 32)
		assert.Equal(t, domain.RunStatusRunning, run.Status)
		assert.Equal(t, domain.RunSourceLocal, run.Source)
		assert.Contains(t, run.ArtifactRoot, run.ID)
		runRepo.AssertExpectations(t)
	})

	t.Run("job runs start scheduled", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		expRepo := new(MockExperimentRepository)
		svc := newTestRunService(runRepo, new(MockMetricRepository), expRepo)

		expID := uuid.New()
		expRepo.On("GetByID", mock.Anything, expID).Return(activeExperiment(expID), nil)
		runRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Run")).Return(nil)

		run, err := svc.Create(context.Background(), expID, &domain.RunInput{}, domain.RunSourceJob)
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusScheduled, run.Status)
	})

	t.Run("rejects archived experiment", func(t *testing.T) {
		expRepo := new(MockExperimentRepository)
		svc := newTestRunService(new(MockRunRepository), new(MockMetricRepository), expRepo)

		expID := uuid.New()
		exp := activeExperiment(expID)
		exp.LifecycleStage = domain.LifecycleStageDeleted
		expRepo.On("GetByID", mock.Anything, expID).Return(exp, nil)

		_, err := svc.Create(context.Background(), expID, &domain.RunInput{}, domain.RunSourceLocal)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestRunService_UpdateStatus(t *testing.T) {
	t.Run("running to completed stamps end time", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		svc := newTestRunService(runRepo, new(MockMetricRepository), new(MockExperimentRepository))

		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusRunning,
		}, nil)
		runRepo.On("UpdateStatus", mock.Anything, testRunID, domain.RunStatusCompleted, mock.AnythingOfType("*time.Time")).Return(nil)

		run, err := svc.UpdateStatus(context.Background(), testRunID, domain.RunStatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusCompleted, run.Status)
		require.NotNil(t, run.EndedAt)
		runRepo.AssertExpectations(t)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		svc := newTestRunService(runRepo, new(MockMetricRepository), new(MockExperimentRepository))

		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusRunning,
		}, nil)

		_, err := svc.UpdateStatus(context.Background(), testRunID, domain.RunStatusRunning)
		require.NoError(t, err)
		runRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("terminal run rejects transitions", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		svc := newTestRunService(runRepo, new(MockMetricRepository), new(MockExperimentRepository))

		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusCompleted,
		}, nil)

		_, err := svc.UpdateStatus(context.Background(), testRunID, domain.RunStatusRunning)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("invalid run id", func(t *testing.T) {
		svc := newTestRunService(new(MockRunRepository), new(MockMetricRepository), new(MockExperimentRepository))

		_, err := svc.UpdateStatus(context.Background(), "not-a-run-id", domain.RunStatusCompleted)
		require.Error(t, err)
	})
}

func TestRunService_LogParams(t *testing.T) {
	t.Run("merges new params", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		svc := newTestRunService(runRepo, new(MockMetricRepository), new(MockExperimentRepository))

		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusRunning,
			Params: map[string]string{"lr": "0.01"},
		}, nil)
		runRepo.On("MergeParams", mock.Anything, testRunID, map[string]string{
			"epochs": "10",
			"lr":     "0.01",
		}).Return(nil)

		err := svc.LogParams(context.Background(), testRunID, []domain.ParamEntry{
			{Key: "epochs", Value: "10"},
			{Key: "lr", Value: "0.01"},
		})
		require.NoError(t, err)
		runRepo.AssertExpectations(t)
	})

	t.Run("rejects changing an existing param", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		svc := newTestRunService(runRepo, new(MockMetricRepository), new(MockExperimentRepository))

		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusRunning,
			Params: map[string]string{"lr": "0.01"},
		}, nil)

		err := svc.LogParams(context.Background(), testRunID, []domain.ParamEntry{
			{Key: "lr", Value: "0.1"},
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("rejects params on finished run", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		svc := newTestRunService(runRepo, new(MockMetricRepository), new(MockExperimentRepository))

		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusFailed,
		}, nil)

		err := svc.LogParams(context.Background(), testRunID, []domain.ParamEntry{
			{Key: "lr", Value: "0.1"},
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestRunService_LogMetrics(t *testing.T) {
	t.Run("defaults missing timestamps to server time", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		metricRepo := new(MockMetricRepository)
		svc := newTestRunService(runRepo, metricRepo, new(MockExperimentRepository))

		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusRunning,
		}, nil)

		before := time.Now()
		metricRepo.On("InsertBatch", mock.Anything, mock.MatchedBy(func(points []domain.MetricPoint) bool {
			if len(points) != 2 {
				return false
			}
			if points[0].Name != "loss" || points[0].Value != 0.42 {
				return false
			}
			// First entry had no timestamp, second had an explicit one
			return !points[0].Timestamp.Before(before) &&
				points[1].Timestamp.Equal(time.UnixMilli(1700000000000))
		})).Return(nil)

		err := svc.LogMetrics(context.Background(), testRunID, &domain.MetricBatch{
			Metrics: []domain.MetricEntry{
				{Name: "loss", Value: 0.42, Step: 1},
				{Name: "accuracy", Value: 0.91, Step: 1, Timestamp: 1700000000000},
			},
		})
		require.NoError(t, err)
		metricRepo.AssertExpectations(t)
	})

	t.Run("rejects metrics on finished run", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		svc := newTestRunService(runRepo, new(MockMetricRepository), new(MockExperimentRepository))

		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusKilled,
		}, nil)

		err := svc.LogMetrics(context.Background(), testRunID, &domain.MetricBatch{
			Metrics: []domain.MetricEntry{{Name: "loss", Value: 1}},
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})
}

func TestRunService_Search(t *testing.T) {
	t.Run("sorts by metric value descending", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		metricRepo := new(MockMetricRepository)
		svc := newTestRunService(runRepo, metricRepo, new(MockExperimentRepository))

		expID := uuid.New()
		runs := []domain.Run{
			{ID: "a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1"},
			{ID: "b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2"},
			{ID: "c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3"},
		}
		filter := &domain.RunFilter{
			ExperimentID: expID,
			SortKey:      domain.RunSortMetric,
			SortMetric:   "accuracy",
		}

		runRepo.On("Search", mock.Anything, filter, 50, 0).Return(&domain.RunList{
			Runs:       runs,
			TotalCount: 3,
		}, nil)
		metricRepo.On("GetLatestForRuns", mock.Anything, mock.Anything, "accuracy").Return(map[string]float64{
			"a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1": 0.7,
			"b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2": 0.9,
			"c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3": 0.8,
		}, nil)

		list, err := svc.Search(context.Background(), filter, testPage())
		require.NoError(t, err)
		require.Len(t, list.Runs, 3)
		assert.Equal(t, "b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2", list.Runs[0].ID)
		assert.Equal(t, "c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3", list.Runs[1].ID)
		assert.Equal(t, "a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1", list.Runs[2].ID)
	})

	t.Run("runs missing the metric sort last", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		metricRepo := new(MockMetricRepository)
		svc := newTestRunService(runRepo, metricRepo, new(MockExperimentRepository))

		filter := &domain.RunFilter{
			ExperimentID: uuid.New(),
			SortKey:      domain.RunSortMetric,
			SortMetric:   "accuracy",
			Ascending:    true,
		}

		runRepo.On("Search", mock.Anything, filter, 50, 0).Return(&domain.RunList{
			Runs: []domain.Run{
				{ID: "a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1"},
				{ID: "b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2"},
			},
			TotalCount: 2,
		}, nil)
		metricRepo.On("GetLatestForRuns", mock.Anything, mock.Anything, "accuracy").Return(map[string]float64{
			"b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2": 0.5,
		}, nil)

		list, err := svc.Search(context.Background(), filter, testPage())
		require.NoError(t, err)
		assert.Equal(t, "b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2", list.Runs[0].ID)
		assert.Equal(t, "a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1", list.Runs[1].ID)
	})
}

func TestRunService_Delete(t *testing.T) {
	t.Run("rejects active run", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		svc := newTestRunService(runRepo, new(MockMetricRepository), new(MockExperimentRepository))

		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusRunning,
		}, nil)

		err := svc.Delete(context.Background(), testRunID)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("removes metrics and row", func(t *testing.T) {
		runRepo := new(MockRunRepository)
		metricRepo := new(MockMetricRepository)
		svc := newTestRunService(runRepo, metricRepo, new(MockExperimentRepository))

		runRepo.On("GetByID", mock.Anything, testRunID).Return(&domain.Run{
			ID:     testRunID,
			Status: domain.RunStatusCompleted,
		}, nil)
		metricRepo.On("DeleteByRunIDs", mock.Anything, []string{testRunID}).Return(nil)
		runRepo.On("Delete", mock.Anything, testRunID).Return(nil)

		err := svc.Delete(context.Background(), testRunID)
		require.NoError(t, err)
		runRepo.AssertExpectations(t)
		metricRepo.AssertExpectations(t)
	})
}
