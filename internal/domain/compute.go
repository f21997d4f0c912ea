package domain

import (
	"time"

	"github.com/google/uuid"
)

// ComputeKind classifies how a compute target executes jobs
type ComputeKind string

const (
	ComputeKindLocal     ComputeKind = "local"     // worker executes the entry point in-process via exec
	ComputeKindContainer ComputeKind = "container" // worker launches a container runtime
	ComputeKindRemote    ComputeKind = "remote"    // external agent polls for jobs
)

// ComputeTarget is an execution environment jobs can be submitted to
type ComputeTarget struct {
	ID          uuid.UUID         `json:"id"`
	WorkspaceID uuid.UUID         `json:"workspaceId"`
	Name        string            `json:"name"`
	Kind        ComputeKind       `json:"kind"`
	MaxParallel int               `json:"maxParallel"`
	Labels      map[string]string `json:"labels,omitempty"` // e.g. gpu=v100, region=westeurope
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ComputeTargetInput represents input for registering a compute target
type ComputeTargetInput struct {
	Name        string            `json:"name" validate:"required,min=1,max=100"`
	Kind        ComputeKind       `json:"kind" validate:"required,oneof=local container remote"`
	MaxParallel *int              `json:"maxParallel,omitempty" validate:"omitempty,min=1"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// JobStatus is the lifecycle status of a submitted training job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// IsTerminal returns true if the job can no longer change state
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// TrainingJob is a training script submitted to a compute target.
// Every job owns exactly one run; the run records what the job produced.
type TrainingJob struct {
	ID           uuid.UUID `json:"id"`
	WorkspaceID  uuid.UUID `json:"workspaceId"`
	ExperimentID uuid.UUID `json:"experimentId"`
	RunID        string    `json:"runId"`
	TargetID     uuid.UUID `json:"targetId"`
	Status       JobStatus `json:"status"`

	EntryPoint   string            `json:"entryPoint"`
	Arguments    []string          `json:"arguments,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	SnapshotPath string            `json:"snapshotPath,omitempty"` // uploaded source snapshot in the artifact store

	TimeoutSec int    `json:"timeoutSec"`
	MaxRetries int    `json:"maxRetries"`
	Error      string `json:"error,omitempty"`

	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TrainingJobInput represents input for submitting a training job
type TrainingJobInput struct {
	ExperimentID string            `json:"experimentId" validate:"required,uuid"`
	TargetName   string            `json:"targetName" validate:"required"`
	EntryPoint   string            `json:"entryPoint" validate:"required,max=500"`
	Arguments    []string          `json:"arguments,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	SnapshotPath string            `json:"snapshotPath,omitempty"`
	RunName      string            `json:"runName,omitempty" validate:"omitempty,max=200"`
	TimeoutSec   *int              `json:"timeoutSec,omitempty" validate:"omitempty,min=1,max=86400"`
	MaxRetries   *int              `json:"maxRetries,omitempty" validate:"omitempty,min=0,max=10"`
}

// TrainingJobFilter represents filter options for listing jobs
type TrainingJobFilter struct {
	WorkspaceID uuid.UUID
	TargetID    *uuid.UUID
	Status      *JobStatus
}

// TrainingJobList represents a paginated list of jobs
type TrainingJobList struct {
	Jobs       []TrainingJob `json:"jobs"`
	TotalCount int64         `json:"totalCount"`
	HasMore    bool          `json:"hasMore"`
}
