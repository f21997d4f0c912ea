package worker

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/tasks"
)

type fakeEndpointManager struct {
	endpoints map[uuid.UUID]*domain.Endpoint
	states    []domain.EndpointState
	removed   []uuid.UUID
}

func newFakeEndpointManager(eps ...*domain.Endpoint) *fakeEndpointManager {
	m := &fakeEndpointManager{endpoints: make(map[uuid.UUID]*domain.Endpoint)}
	for _, ep := range eps {
		m.endpoints[ep.ID] = ep
	}
	return m
}

func (m *fakeEndpointManager) Get(_ context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	ep, ok := m.endpoints[id]
	if !ok {
		return nil, apperrors.NotFound("endpoint")
	}
	copied := *ep
	return &copied, nil
}

func (m *fakeEndpointManager) MarkState(_ context.Context, id uuid.UUID, state domain.EndpointState, stateErr string) error {
	ep, ok := m.endpoints[id]
	if !ok {
		return apperrors.NotFound("endpoint")
	}
	ep.State = state
	ep.Error = stateErr
	m.states = append(m.states, state)
	return nil
}

func (m *fakeEndpointManager) Remove(_ context.Context, id uuid.UUID) error {
	if _, ok := m.endpoints[id]; !ok {
		return apperrors.NotFound("endpoint")
	}
	delete(m.endpoints, id)
	m.removed = append(m.removed, id)
	return nil
}

type fakeProber struct {
	healthyAfter int
	calls        int
}

func (p *fakeProber) Healthy(_, _ string) bool {
	p.calls++
	return p.calls > p.healthyAfter
}

func deployTask(t *testing.T, endpointID uuid.UUID) *asynq.Task {
	t.Helper()
	task, err := tasks.NewEndpointDeployTask(&tasks.EndpointDeployPayload{EndpointID: endpointID})
	require.NoError(t, err)
	return task
}

func teardownTask(t *testing.T, endpointID uuid.UUID) *asynq.Task {
	t.Helper()
	task, err := tasks.NewEndpointTeardownTask(&tasks.EndpointTeardownPayload{EndpointID: endpointID})
	require.NoError(t, err)
	return task
}

func TestDeployWorkerProcessDeployTask(t *testing.T) {
	t.Run("marks endpoint ready once scorer answers", func(t *testing.T) {
		ep := &domain.Endpoint{
			ID:         uuid.New(),
			Name:       "mnist",
			State:      domain.EndpointStatePending,
			ScoringURL: "http://scorer.internal/score",
		}
		manager := newFakeEndpointManager(ep)
		w := NewDeployWorker(zap.NewNop(), manager, &fakeProber{})

		require.NoError(t, w.ProcessDeployTask(context.Background(), deployTask(t, ep.ID)))

		assert.Equal(t, []domain.EndpointState{
			domain.EndpointStateProvisioning,
			domain.EndpointStateReady,
		}, manager.states)
		assert.Equal(t, domain.EndpointStateReady, manager.endpoints[ep.ID].State)
	})

	t.Run("skips endpoint not in pending state", func(t *testing.T) {
		ep := &domain.Endpoint{
			ID:    uuid.New(),
			State: domain.EndpointStateReady,
		}
		manager := newFakeEndpointManager(ep)
		w := NewDeployWorker(zap.NewNop(), manager, &fakeProber{})

		require.NoError(t, w.ProcessDeployTask(context.Background(), deployTask(t, ep.ID)))
		assert.Empty(t, manager.states)
	})

	t.Run("vanished endpoint is not an error", func(t *testing.T) {
		w := NewDeployWorker(zap.NewNop(), newFakeEndpointManager(), &fakeProber{})
		require.NoError(t, w.ProcessDeployTask(context.Background(), deployTask(t, uuid.New())))
	})
}

func TestDeployWorkerProcessTeardownTask(t *testing.T) {
	t.Run("removes endpoint", func(t *testing.T) {
		ep := &domain.Endpoint{
			ID:    uuid.New(),
			State: domain.EndpointStateDeleting,
		}
		manager := newFakeEndpointManager(ep)
		w := NewDeployWorker(zap.NewNop(), manager, &fakeProber{})

		require.NoError(t, w.ProcessTeardownTask(context.Background(), teardownTask(t, ep.ID)))
		assert.Equal(t, []uuid.UUID{ep.ID}, manager.removed)
	})

	t.Run("already removed endpoint is not an error", func(t *testing.T) {
		w := NewDeployWorker(zap.NewNop(), newFakeEndpointManager(), &fakeProber{})
		require.NoError(t, w.ProcessTeardownTask(context.Background(), teardownTask(t, uuid.New())))
	})
}
