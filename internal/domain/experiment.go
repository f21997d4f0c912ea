package domain

import (
	"time"

	"github.com/google/uuid"
)

// LifecycleStage represents whether an experiment is active or archived
type LifecycleStage string

const (
	LifecycleStageActive  LifecycleStage = "active"
	LifecycleStageDeleted LifecycleStage = "deleted"
)

// Experiment is a named grouping of training runs within a workspace
type Experiment struct {
	ID             uuid.UUID      `json:"id"`
	WorkspaceID    uuid.UUID      `json:"workspaceId"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	LifecycleStage LifecycleStage `json:"lifecycleStage"`
	ArtifactRoot   string         `json:"artifactRoot,omitempty"` // object-store prefix for run artifacts
	Tags           map[string]string `json:"tags,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// ExperimentInput represents input for creating an experiment
type ExperimentInput struct {
	Name         string            `json:"name" validate:"required,min=1,max=200"`
	Description  string            `json:"description,omitempty"`
	ArtifactRoot string            `json:"artifactRoot,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// ExperimentUpdateInput represents input for updating an experiment
type ExperimentUpdateInput struct {
	Name        *string           `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string           `json:"description,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// ExperimentFilter represents filter options for querying experiments
type ExperimentFilter struct {
	WorkspaceID    uuid.UUID
	LifecycleStage *LifecycleStage
	Search         string
}

// ExperimentList represents a paginated list of experiments
type ExperimentList struct {
	Experiments []Experiment `json:"experiments"`
	TotalCount  int64        `json:"totalCount"`
	HasMore     bool         `json:"hasMore"`
}
