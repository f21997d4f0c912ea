package domain

import (
	"time"

	"github.com/google/uuid"
)

// APIKey represents an API key scoped to a workspace
type APIKey struct {
	ID               uuid.UUID  `json:"id"`
	WorkspaceID      uuid.UUID  `json:"workspaceId"`
	Name             string     `json:"name"`
	PublicKey        string     `json:"publicKey"`
	SecretKeyHash    string     `json:"-"`
	SecretKeyPreview string     `json:"secretKeyPreview"`
	Scopes           []string   `json:"scopes"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt       *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// APIKeyInput represents input for creating an API key
type APIKeyInput struct {
	Name      string     `json:"name" validate:"required,min=1,max=100"`
	Scopes    []string   `json:"scopes,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// APIKeyCreateResult represents the result of creating an API key.
// SecretKey is shown exactly once.
type APIKeyCreateResult struct {
	APIKey    *APIKey `json:"apiKey"`
	SecretKey string  `json:"secretKey"`
}

// APIKeyList represents a paginated list of API keys
type APIKeyList struct {
	APIKeys    []APIKey `json:"apiKeys"`
	TotalCount int64    `json:"totalCount"`
	HasMore    bool     `json:"hasMore"`
}

// DefaultScopes returns the default API key scopes
func DefaultScopes() []string {
	return []string{
		"runs:write",
		"runs:read",
		"metrics:write",
		"metrics:read",
		"artifacts:write",
		"artifacts:read",
		"models:read",
		"endpoints:invoke",
	}
}

// AllScopes returns all available API key scopes
func AllScopes() []string {
	return []string{
		"runs:write",
		"runs:read",
		"runs:delete",

		"metrics:write",
		"metrics:read",

		"artifacts:write",
		"artifacts:read",
		"artifacts:delete",

		"models:read",
		"models:write",
		"models:delete",

		"jobs:read",
		"jobs:write",

		"endpoints:read",
		"endpoints:write",
		"endpoints:invoke",

		"admin:read",
		"admin:write",
	}
}

// HasScope checks if the API key has a specific scope
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope || s == "admin:write" {
			return true
		}
		// Wildcard scopes like "runs:*"
		if len(s) > 1 && s[len(s)-1] == '*' {
			prefix := s[:len(s)-1]
			if len(scope) >= len(prefix) && scope[:len(prefix)] == prefix {
				return true
			}
		}
	}
	return false
}

// IsExpired checks if the API key has expired
func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt)
}
