package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/inference"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/pkg/metrics"
)

// RouteResolver resolves endpoint names to routing entries
type RouteResolver interface {
	GetRoute(ctx context.Context, workspaceID uuid.UUID, name string) (*domain.EndpointRoute, error)
}

// Scorer forwards invocation payloads to a backing scorer
type Scorer interface {
	Score(scoringURL, authToken string, body []byte) ([]byte, error)
}

// InvocationContext carries actor and request details for auditing
type InvocationContext struct {
	ActorType string
	Actor     string
	IPAddress string
	RequestID string
}

// InferenceService proxies invocation requests to deployed endpoints
type InferenceService struct {
	routes RouteResolver
	scorer Scorer
	audit  *AuditService
}

// NewInferenceService creates a new inference service
func NewInferenceService(routes RouteResolver, scorer Scorer, audit *AuditService) *InferenceService {
	return &InferenceService{
		routes: routes,
		scorer: scorer,
		audit:  audit,
	}
}

// Invoke validates an invocation body against the endpoint's declared
// input shape and forwards it to the backing scorer. The scorer's
// response body is returned verbatim.
func (s *InferenceService) Invoke(ctx context.Context, workspaceID uuid.UUID, name string, body []byte, invCtx *InvocationContext) ([]byte, error) {
	start := time.Now()

	route, err := s.routes.GetRoute(ctx, workspaceID, name)
	if err != nil {
		metrics.RecordInvocation(name, "error", time.Since(start))
		return nil, err
	}

	if route.State != domain.EndpointStateReady {
		metrics.RecordInvocation(name, "not_ready", time.Since(start))
		return nil, apperrors.Unavailable(fmt.Sprintf("endpoint is %s", route.State))
	}

	instances, err := inference.ParseRequest(body, route.InputShape)
	if err != nil {
		metrics.RecordInvocation(name, "bad_request", time.Since(start))
		return nil, err
	}

	result, err := s.scorer.Score(route.ScoringURL, route.AuthToken, body)
	if err != nil {
		metrics.RecordInvocation(name, "upstream_error", time.Since(start))
		return nil, err
	}

	metrics.RecordInvocation(name, "ok", time.Since(start))

	if s.audit != nil && invCtx != nil {
		s.audit.LogAsync(&domain.AuditLogInput{
			WorkspaceID:  workspaceID,
			ActorType:    invCtx.ActorType,
			Actor:        invCtx.Actor,
			Action:       domain.AuditActionEndpointInvoked,
			ResourceType: domain.AuditResourceEndpoint,
			ResourceID:   route.EndpointID.String(),
			ResourceName: name,
			Description:  fmt.Sprintf("invoked with %d instances", len(instances)),
			IPAddress:    invCtx.IPAddress,
			RequestID:    invCtx.RequestID,
		})
	}

	return result, nil
}

// SamplePayload builds an example invocation body for an endpoint
func (s *InferenceService) SamplePayload(ctx context.Context, workspaceID uuid.UUID, name string, instances int) ([]byte, error) {
	route, err := s.routes.GetRoute(ctx, workspaceID, name)
	if err != nil {
		return nil, err
	}

	return inference.SamplePayload(route.InputShape, instances)
}
