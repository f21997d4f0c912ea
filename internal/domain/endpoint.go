package domain

import (
	"time"

	"github.com/google/uuid"
)

// EndpointState is the deployment state of an inference endpoint
type EndpointState string

const (
	EndpointStatePending      EndpointState = "pending"
	EndpointStateProvisioning EndpointState = "provisioning"
	EndpointStateReady        EndpointState = "ready"
	EndpointStateFailed       EndpointState = "failed"
	EndpointStateDeleting     EndpointState = "deleting"
)

// Endpoint is a deployed model version reachable over HTTP. The scoring
// URL points at the backing scorer; MLyard proxies invocations to it.
type Endpoint struct {
	ID             uuid.UUID     `json:"id"`
	WorkspaceID    uuid.UUID     `json:"workspaceId"`
	Name           string        `json:"name"`
	ModelVersionID uuid.UUID     `json:"modelVersionId"`
	State          EndpointState `json:"state"`

	ScoringURL string `json:"scoringUrl"`
	AuthToken  string `json:"-"` // bearer token for the backing scorer, never serialized

	// Resources requested for the container, informational
	CPUCores float64 `json:"cpuCores,omitempty"`
	MemoryGB float64 `json:"memoryGb,omitempty"`

	Error     string     `json:"error,omitempty"`
	ReadyAt   *time.Time `json:"readyAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// EndpointInput represents input for deploying an endpoint
type EndpointInput struct {
	Name           string  `json:"name" validate:"required,min=1,max=63,hostname_rfc1123"`
	ModelVersionID string  `json:"modelVersionId" validate:"required,uuid"`
	ScoringURL     string  `json:"scoringUrl" validate:"required,url"`
	AuthToken      string  `json:"authToken,omitempty"`
	CPUCores       float64 `json:"cpuCores,omitempty" validate:"omitempty,gt=0"`
	MemoryGB       float64 `json:"memoryGb,omitempty" validate:"omitempty,gt=0"`
}

// EndpointUpdateInput re-points an endpoint at a different model version
type EndpointUpdateInput struct {
	ModelVersionID string `json:"modelVersionId" validate:"required,uuid"`
}

// EndpointFilter represents filter options for listing endpoints
type EndpointFilter struct {
	WorkspaceID uuid.UUID
	State       *EndpointState
}

// EndpointList represents a paginated list of endpoints
type EndpointList struct {
	Endpoints  []Endpoint `json:"endpoints"`
	TotalCount int64      `json:"totalCount"`
	HasMore    bool       `json:"hasMore"`
}

// EndpointRoute is the cached routing entry used on the inference hot path
type EndpointRoute struct {
	EndpointID uuid.UUID     `json:"endpointId"`
	State      EndpointState `json:"state"`
	ScoringURL string        `json:"scoringUrl"`
	AuthToken  string        `json:"authToken,omitempty"`
	InputShape []int         `json:"inputShape,omitempty"`
}
