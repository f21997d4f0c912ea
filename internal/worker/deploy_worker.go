package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/tasks"
)

// Health check rollout parameters. An endpoint that never answers within
// the window is marked failed.
const (
	healthCheckAttempts = 30
	healthCheckInterval = 2 * time.Second
)

// EndpointManager is the slice of the endpoint service the deploy worker
// drives
type EndpointManager interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error)
	MarkState(ctx context.Context, id uuid.UUID, state domain.EndpointState, stateErr string) error
	Remove(ctx context.Context, id uuid.UUID) error
}

// HealthProber checks whether a scoring URL answers
type HealthProber interface {
	Healthy(scoringURL, authToken string) bool
}

// DeployWorker drives endpoints from pending to ready and handles
// teardown
type DeployWorker struct {
	logger    *zap.Logger
	endpoints EndpointManager
	prober    HealthProber
}

// NewDeployWorker creates a new deploy worker
func NewDeployWorker(logger *zap.Logger, endpoints EndpointManager, prober HealthProber) *DeployWorker {
	return &DeployWorker{
		logger:    logger,
		endpoints: endpoints,
		prober:    prober,
	}
}

// ProcessDeployTask rolls out one endpoint. The backing scorer is polled
// until it answers; only then does the endpoint go ready.
func (w *DeployWorker) ProcessDeployTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.EndpointDeployPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal deploy payload: %v: %w", err, asynq.SkipRetry)
	}

	ep, err := w.endpoints.Get(ctx, payload.EndpointID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	if ep.State != domain.EndpointStatePending {
		w.logger.Info("skipping deploy for endpoint not in pending state",
			zap.String("endpoint_id", ep.ID.String()),
			zap.String("state", string(ep.State)))
		return nil
	}

	if err := w.endpoints.MarkState(ctx, ep.ID, domain.EndpointStateProvisioning, ""); err != nil {
		return err
	}

	w.logger.Info("provisioning endpoint",
		zap.String("endpoint_id", ep.ID.String()),
		zap.String("name", ep.Name),
		zap.String("scoring_url", ep.ScoringURL))

	for attempt := 0; attempt < healthCheckAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if w.prober.Healthy(ep.ScoringURL, ep.AuthToken) {
			if err := w.endpoints.MarkState(ctx, ep.ID, domain.EndpointStateReady, ""); err != nil {
				return err
			}
			w.logger.Info("endpoint ready",
				zap.String("endpoint_id", ep.ID.String()),
				zap.String("name", ep.Name),
				zap.Int("attempts", attempt+1))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(healthCheckInterval):
		}
	}

	msg := fmt.Sprintf("scorer did not answer after %d health checks", healthCheckAttempts)
	if err := w.endpoints.MarkState(ctx, ep.ID, domain.EndpointStateFailed, msg); err != nil {
		return err
	}

	w.logger.Warn("endpoint deployment failed",
		zap.String("endpoint_id", ep.ID.String()),
		zap.String("name", ep.Name))

	return nil
}

// ProcessTeardownTask removes an endpoint after its route was already
// invalidated by the service
func (w *DeployWorker) ProcessTeardownTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.EndpointTeardownPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal teardown payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := w.endpoints.Remove(ctx, payload.EndpointID); err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	w.logger.Info("endpoint removed",
		zap.String("endpoint_id", payload.EndpointID.String()))

	return nil
}
