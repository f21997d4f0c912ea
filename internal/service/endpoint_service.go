package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/pkg/database"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/pkg/logger"
	"github.com/mlyard/mlyard/internal/pkg/pagination"
	"github.com/mlyard/mlyard/internal/tasks"
)

// EndpointRepository defines endpoint persistence operations
type EndpointRepository interface {
	Create(ctx context.Context, ep *domain.Endpoint) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error)
	GetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.Endpoint, error)
	UpdateState(ctx context.Context, id uuid.UUID, state domain.EndpointState, epErr string) error
	UpdateModelVersion(ctx context.Context, id, modelVersionID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter *domain.EndpointFilter, limit, offset int) (*domain.EndpointList, error)
}

// EndpointService handles endpoint deployment and the routing table used
// on the inference hot path
type EndpointService struct {
	repo       EndpointRepository
	modelRepo  ModelRepository
	routeCache *database.Cache
	taskClient tasks.Enqueuer
}

// NewEndpointService creates a new endpoint service
func NewEndpointService(repo EndpointRepository, modelRepo ModelRepository, routeCache *database.Cache, taskClient tasks.Enqueuer) *EndpointService {
	return &EndpointService{
		repo:       repo,
		modelRepo:  modelRepo,
		routeCache: routeCache,
		taskClient: taskClient,
	}
}

func routeCacheKey(workspaceID uuid.UUID, name string) string {
	return fmt.Sprintf("route:%s:%s", workspaceID, name)
}

// Deploy creates an endpoint for a model version. The endpoint starts in
// pending state; the deploy worker drives it to ready.
func (s *EndpointService) Deploy(ctx context.Context, workspaceID uuid.UUID, input *domain.EndpointInput) (*domain.Endpoint, error) {
	modelVersionID, err := uuid.Parse(input.ModelVersionID)
	if err != nil {
		return nil, apperrors.Validation("invalid model version ID")
	}

	if _, err := s.modelRepo.GetVersionByID(ctx, modelVersionID); err != nil {
		return nil, err
	}

	now := time.Now()
	ep := &domain.Endpoint{
		ID:             uuid.New(),
		WorkspaceID:    workspaceID,
		Name:           input.Name,
		ModelVersionID: modelVersionID,
		State:          domain.EndpointStatePending,
		ScoringURL:     input.ScoringURL,
		AuthToken:      input.AuthToken,
		CPUCores:       input.CPUCores,
		MemoryGB:       input.MemoryGB,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(ctx, ep); err != nil {
		return nil, err
	}

	if s.taskClient != nil {
		if err := tasks.EnqueueEndpointDeploy(s.taskClient, &tasks.EndpointDeployPayload{
			EndpointID: ep.ID,
		}); err != nil {
			logger.Error("Failed to enqueue endpoint deploy",
				zap.String("endpoint_id", ep.ID.String()),
				zap.Error(err))
			_ = s.repo.UpdateState(ctx, ep.ID, domain.EndpointStateFailed, "failed to enqueue deployment")
			return nil, apperrors.Internal("failed to schedule endpoint deployment")
		}
	}

	return ep, nil
}

// Get retrieves an endpoint by ID
func (s *EndpointService) Get(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByName retrieves an endpoint by workspace and name
func (s *EndpointService) GetByName(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.Endpoint, error) {
	return s.repo.GetByName(ctx, workspaceID, name)
}

// List retrieves endpoints matching the filter
func (s *EndpointService) List(ctx context.Context, filter *domain.EndpointFilter, page pagination.PageParams) (*domain.EndpointList, error) {
	return s.repo.List(ctx, filter, page.Limit, page.Offset)
}

// UpdateModelVersion re-points an endpoint at a different model version
// and invalidates its cached route
func (s *EndpointService) UpdateModelVersion(ctx context.Context, id uuid.UUID, input *domain.EndpointUpdateInput) (*domain.Endpoint, error) {
	modelVersionID, err := uuid.Parse(input.ModelVersionID)
	if err != nil {
		return nil, apperrors.Validation("invalid model version ID")
	}

	ep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ep.State == domain.EndpointStateDeleting {
		return nil, apperrors.Conflict("endpoint is being deleted")
	}

	if _, err := s.modelRepo.GetVersionByID(ctx, modelVersionID); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateModelVersion(ctx, id, modelVersionID); err != nil {
		return nil, err
	}

	s.InvalidateRoute(ctx, ep.WorkspaceID, ep.Name)

	return s.repo.GetByID(ctx, id)
}

// Teardown requests deletion of an endpoint. The deploy worker removes
// the backing scorer and deletes the row.
func (s *EndpointService) Teardown(ctx context.Context, id uuid.UUID) error {
	ep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ep.State == domain.EndpointStateDeleting {
		return apperrors.Conflict("endpoint is already being deleted")
	}

	if err := s.repo.UpdateState(ctx, id, domain.EndpointStateDeleting, ""); err != nil {
		return err
	}

	s.InvalidateRoute(ctx, ep.WorkspaceID, ep.Name)

	if s.taskClient != nil {
		if err := tasks.EnqueueEndpointTeardown(s.taskClient, &tasks.EndpointTeardownPayload{
			EndpointID: id,
		}); err != nil {
			logger.Error("Failed to enqueue endpoint teardown",
				zap.String("endpoint_id", id.String()),
				zap.Error(err))
			return apperrors.Internal("failed to schedule endpoint teardown")
		}
	}

	return nil
}

// MarkState transitions an endpoint's state. Called by the deploy worker.
func (s *EndpointService) MarkState(ctx context.Context, id uuid.UUID, state domain.EndpointState, stateErr string) error {
	ep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateState(ctx, id, state, stateErr); err != nil {
		return err
	}

	s.InvalidateRoute(ctx, ep.WorkspaceID, ep.Name)
	return nil
}

// Remove deletes the endpoint row after teardown finished
func (s *EndpointService) Remove(ctx context.Context, id uuid.UUID) error {
	ep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.InvalidateRoute(ctx, ep.WorkspaceID, ep.Name)
	return nil
}

// GetRoute resolves the routing entry for an endpoint name. Routes are
// cached in Redis so invocations avoid a Postgres read per request.
func (s *EndpointService) GetRoute(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.EndpointRoute, error) {
	key := routeCacheKey(workspaceID, name)

	if s.routeCache != nil {
		if cached, ok := s.routeCache.Get(ctx, key); ok {
			var route domain.EndpointRoute
			if err := json.Unmarshal([]byte(cached), &route); err == nil {
				return &route, nil
			}
			_ = s.routeCache.Delete(ctx, key)
		}
	}

	ep, err := s.repo.GetByName(ctx, workspaceID, name)
	if err != nil {
		return nil, err
	}

	route := &domain.EndpointRoute{
		EndpointID: ep.ID,
		State:      ep.State,
		ScoringURL: ep.ScoringURL,
		AuthToken:  ep.AuthToken,
	}

	if mv, err := s.modelRepo.GetVersionByID(ctx, ep.ModelVersionID); err == nil {
		route.InputShape = mv.InputShape
	}

	if s.routeCache != nil {
		if data, err := json.Marshal(route); err == nil {
			if err := s.routeCache.Set(ctx, key, string(data)); err != nil {
				logger.Debug("Failed to cache endpoint route",
					zap.String("endpoint", name),
					zap.Error(err))
			}
		}
	}

	return route, nil
}

// InvalidateRoute drops the cached route for an endpoint
func (s *EndpointService) InvalidateRoute(ctx context.Context, workspaceID uuid.UUID, name string) {
	if s.routeCache == nil {
		return
	}
	if err := s.routeCache.Delete(ctx, routeCacheKey(workspaceID, name)); err != nil {
		logger.Debug("Failed to invalidate endpoint route",
			zap.String("endpoint", name),
			zap.Error(err))
	}
}
