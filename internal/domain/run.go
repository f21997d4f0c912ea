package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle status of a training run
type RunStatus string

const (
	RunStatusScheduled RunStatus = "scheduled"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusKilled    RunStatus = "killed"
)

// IsTerminal returns true if the status admits no further transitions
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusKilled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a status transition is legal
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case RunStatusScheduled:
		return next == RunStatusRunning || next == RunStatusFailed || next == RunStatusKilled
	case RunStatusRunning:
		return next.IsTerminal()
	}
	return false
}

// RunSource identifies how a run was started
type RunSource string

const (
	RunSourceLocal RunSource = "local" // client-side script talking to the tracking API
	RunSourceJob   RunSource = "job"   // submitted to a compute target
)

// Run is a single training run. The ID is a 32-char hex string handed
// back to clients as the run handle.
type Run struct {
	ID           string    `json:"id"`
	ExperimentID uuid.UUID `json:"experimentId"`
	Name         string    `json:"name,omitempty"`
	Status       RunStatus `json:"status"`
	Source       RunSource `json:"source"`

	// Provenance
	ComputeTarget string `json:"computeTarget,omitempty"`
	EntryPoint    string `json:"entryPoint,omitempty"`
	GitCommit     string `json:"gitCommit,omitempty"`
	User          string `json:"user,omitempty"`

	ArtifactRoot string `json:"artifactRoot"` // object-store prefix for this run's artifacts

	Params map[string]string `json:"params,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// RunInput represents input for creating a run
type RunInput struct {
	Name          string            `json:"name,omitempty" validate:"omitempty,max=200"`
	ComputeTarget string            `json:"computeTarget,omitempty"`
	EntryPoint    string            `json:"entryPoint,omitempty"`
	GitCommit     string            `json:"gitCommit,omitempty" validate:"omitempty,max=64"`
	User          string            `json:"user,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// RunSortKey determines ordering for run searches
type RunSortKey string

const (
	RunSortStartTime RunSortKey = "start_time"
	RunSortMetric    RunSortKey = "metric"
)

// RunFilter represents filter options for searching runs
type RunFilter struct {
	ExperimentID uuid.UUID
	Status       *RunStatus
	SortKey      RunSortKey
	SortMetric   string // metric name when SortKey == RunSortMetric
	Ascending    bool
}

// RunList represents a paginated list of runs
type RunList struct {
	Runs       []Run `json:"runs"`
	TotalCount int64 `json:"totalCount"`
	HasMore    bool  `json:"hasMore"`
}

// ParamEntry is a single write-once run parameter
type ParamEntry struct {
	Key   string `json:"key" validate:"required,max=250"`
	Value string `json:"value" validate:"required"`
}

// TagEntry is a single mutable run tag
type TagEntry struct {
	Key   string `json:"key" validate:"required,max=250"`
	Value string `json:"value"`
}
