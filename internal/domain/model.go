package domain

import (
	"time"

	"github.com/google/uuid"
)

// ModelStage is the deployment stage of a model version
type ModelStage string

const (
	ModelStageNone       ModelStage = "none"
	ModelStageStaging    ModelStage = "staging"
	ModelStageProduction ModelStage = "production"
	ModelStageArchived   ModelStage = "archived"
)

// ValidModelStage reports whether s is a known stage
func ValidModelStage(s ModelStage) bool {
	switch s {
	case ModelStageNone, ModelStageStaging, ModelStageProduction, ModelStageArchived:
		return true
	}
	return false
}

// RegisteredModel is a named model in the registry. Versions hang off it.
type RegisteredModel struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspaceId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Populated on detail reads
	LatestVersions []ModelVersion `json:"latestVersions,omitempty"`
}

// ModelVersion is an immutable snapshot of a model produced by a run
type ModelVersion struct {
	ID           uuid.UUID  `json:"id"`
	ModelID      uuid.UUID  `json:"modelId"`
	Version      int        `json:"version"`
	RunID        string     `json:"runId"`
	ArtifactPath string     `json:"artifactPath"` // path under the run's artifact root
	Stage        ModelStage `json:"stage"`
	Description  string     `json:"description,omitempty"`

	// Declared scoring input shape, e.g. [1, 28, 28] per instance.
	// Used by the inference path to validate payloads.
	InputShape []int `json:"inputShape,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RegisteredModelInput represents input for creating a registered model
type RegisteredModelInput struct {
	Name        string            `json:"name" validate:"required,min=1,max=200"`
	Description string            `json:"description,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// ModelVersionInput represents input for creating a model version
type ModelVersionInput struct {
	RunID        string `json:"runId" validate:"required,runid"`
	ArtifactPath string `json:"artifactPath" validate:"required"`
	Description  string `json:"description,omitempty"`
	InputShape   []int  `json:"inputShape,omitempty" validate:"omitempty,min=1,dive,min=1"`
}

// StageTransitionInput requests a stage change on a model version
type StageTransitionInput struct {
	Stage            ModelStage `json:"stage" validate:"required"`
	ArchiveExisting  bool       `json:"archiveExisting"` // archive current production versions first
}

// RegisteredModelFilter represents filter options for listing models
type RegisteredModelFilter struct {
	WorkspaceID uuid.UUID
	Search      string
}

// RegisteredModelList represents a paginated list of registered models
type RegisteredModelList struct {
	Models     []RegisteredModel `json:"models"`
	TotalCount int64             `json:"totalCount"`
	HasMore    bool              `json:"hasMore"`
}
