// Package tasks defines the background task types shared between the
// API server (which enqueues) and the worker process (which handles).
package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names. Queue placement: training and deploys are critical,
// exports and cleanup run on low.
const (
	TypeTrainingRun      = "job:training"
	TypeEndpointDeploy   = "endpoint:deploy"
	TypeEndpointTeardown = "endpoint:teardown"
	TypeMetricExport     = "export:metrics"
	TypeRetentionCleanup = "cleanup:retention"
)

// Queue names used across the system
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// TrainingRunPayload carries a submitted training job to the worker
type TrainingRunPayload struct {
	JobID uuid.UUID `json:"job_id"`
	RunID string    `json:"run_id"`
}

// NewTrainingRunTask creates a training run task
func NewTrainingRunTask(payload *TrainingRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal training payload: %w", err)
	}
	return asynq.NewTask(TypeTrainingRun, data), nil
}

// EndpointDeployPayload carries an endpoint rollout to the worker
type EndpointDeployPayload struct {
	EndpointID uuid.UUID `json:"endpoint_id"`
}

// NewEndpointDeployTask creates an endpoint deploy task
func NewEndpointDeployTask(payload *EndpointDeployPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deploy payload: %w", err)
	}
	return asynq.NewTask(TypeEndpointDeploy, data), nil
}

// EndpointTeardownPayload carries an endpoint teardown to the worker
type EndpointTeardownPayload struct {
	EndpointID uuid.UUID `json:"endpoint_id"`
}

// NewEndpointTeardownTask creates an endpoint teardown task
func NewEndpointTeardownTask(payload *EndpointTeardownPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal teardown payload: %w", err)
	}
	return asynq.NewTask(TypeEndpointTeardown, data), nil
}

// MetricExportPayload asks the worker to push a finished run's metrics
// to the configured OTLP collector
type MetricExportPayload struct {
	RunID string `json:"run_id"`
}

// NewMetricExportTask creates a metric export task
func NewMetricExportTask(payload *MetricExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export payload: %w", err)
	}
	return asynq.NewTask(TypeMetricExport, data), nil
}

// RetentionCleanupPayload scopes a cleanup sweep. A nil workspace means
// every workspace is swept.
type RetentionCleanupPayload struct {
	WorkspaceID *uuid.UUID `json:"workspace_id,omitempty"`
}

// NewRetentionCleanupTask creates a retention cleanup task
func NewRetentionCleanupTask(payload *RetentionCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cleanup payload: %w", err)
	}
	return asynq.NewTask(TypeRetentionCleanup, data), nil
}

// Enqueuer enqueues background tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueTrainingRun enqueues a training run on the critical queue
func EnqueueTrainingRun(client Enqueuer, payload *TrainingRunPayload, maxRetries int) error {
	task, err := NewTrainingRunTask(payload)
	if err != nil {
		return err
	}
	_, err = client.Enqueue(task, asynq.Queue(QueueCritical), asynq.MaxRetry(maxRetries))
	return err
}

// EnqueueEndpointDeploy enqueues an endpoint rollout
func EnqueueEndpointDeploy(client Enqueuer, payload *EndpointDeployPayload) error {
	task, err := NewEndpointDeployTask(payload)
	if err != nil {
		return err
	}
	_, err = client.Enqueue(task, asynq.Queue(QueueCritical))
	return err
}

// EnqueueEndpointTeardown enqueues an endpoint teardown
func EnqueueEndpointTeardown(client Enqueuer, payload *EndpointTeardownPayload) error {
	task, err := NewEndpointTeardownTask(payload)
	if err != nil {
		return err
	}
	_, err = client.Enqueue(task, asynq.Queue(QueueDefault))
	return err
}

// EnqueueMetricExport enqueues an OTLP metric export
func EnqueueMetricExport(client Enqueuer, payload *MetricExportPayload) error {
	task, err := NewMetricExportTask(payload)
	if err != nil {
		return err
	}
	_, err = client.Enqueue(task, asynq.Queue(QueueLow))
	return err
}
