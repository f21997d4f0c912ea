package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	// Workspace management
	AuditActionWorkspaceCreated AuditAction = "workspace_created"
	AuditActionWorkspaceUpdated AuditAction = "workspace_updated"
	AuditActionWorkspaceDeleted AuditAction = "workspace_deleted"

	// Experiment / run lifecycle
	AuditActionExperimentCreated AuditAction = "experiment_created"
	AuditActionExperimentDeleted AuditAction = "experiment_deleted"
	AuditActionRunDeleted        AuditAction = "run_deleted"
	AuditActionRunKilled         AuditAction = "run_killed"

	// Job submission
	AuditActionJobSubmitted AuditAction = "job_submitted"
	AuditActionJobCanceled  AuditAction = "job_canceled"

	// Model registry
	AuditActionModelRegistered     AuditAction = "model_registered"
	AuditActionModelVersionCreated AuditAction = "model_version_created"
	AuditActionStageTransition     AuditAction = "stage_transition"

	// Deployment
	AuditActionEndpointDeployed AuditAction = "endpoint_deployed"
	AuditActionEndpointUpdated  AuditAction = "endpoint_updated"
	AuditActionEndpointDeleted  AuditAction = "endpoint_deleted"
	AuditActionEndpointInvoked  AuditAction = "endpoint_invoked"

	// API key management
	AuditActionAPIKeyCreated AuditAction = "api_key_created"
	AuditActionAPIKeyRevoked AuditAction = "api_key_revoked"
)

// AuditResourceType represents the type of resource being audited
type AuditResourceType string

const (
	AuditResourceWorkspace  AuditResourceType = "workspace"
	AuditResourceExperiment AuditResourceType = "experiment"
	AuditResourceRun        AuditResourceType = "run"
	AuditResourceJob        AuditResourceType = "job"
	AuditResourceModel      AuditResourceType = "model"
	AuditResourceEndpoint   AuditResourceType = "endpoint"
	AuditResourceAPIKey     AuditResourceType = "api_key"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	WorkspaceID  uuid.UUID         `json:"workspaceId" db:"workspace_id"`
	ActorType    string            `json:"actorType" db:"actor_type"` // "user", "api_key", "system"
	Actor        string            `json:"actor" db:"actor"`          // user subject or key public id
	Action       AuditAction       `json:"action" db:"action"`
	ResourceType AuditResourceType `json:"resourceType" db:"resource_type"`
	ResourceID   string            `json:"resourceId,omitempty" db:"resource_id"`
	ResourceName string            `json:"resourceName,omitempty" db:"resource_name"`
	Description  string            `json:"description" db:"description"`
	Metadata     map[string]any    `json:"metadata,omitempty" db:"metadata"`

	// Request context
	IPAddress string `json:"ipAddress" db:"ip_address"`
	RequestID string `json:"requestId,omitempty" db:"request_id"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// AuditLogInput represents input for recording an audit log entry
type AuditLogInput struct {
	WorkspaceID  uuid.UUID
	ActorType    string
	Actor        string
	Action       AuditAction
	ResourceType AuditResourceType
	ResourceID   string
	ResourceName string
	Description  string
	Metadata     map[string]any
	IPAddress    string
	RequestID    string
}

// AuditLogFilter represents filter options for querying audit logs
type AuditLogFilter struct {
	WorkspaceID  uuid.UUID
	Action       *AuditAction
	ResourceType *AuditResourceType
	Since        *time.Time
	Until        *time.Time
}

// AuditLogList represents a paginated list of audit log entries
type AuditLogList struct {
	Logs       []AuditLog `json:"logs"`
	TotalCount int64      `json:"totalCount"`
	HasMore    bool       `json:"hasMore"`
}
