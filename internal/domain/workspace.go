package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Workspace is the tenancy root. Experiments, models, compute targets
// and endpoints all belong to exactly one workspace.
type Workspace struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description,omitempty"`
	Settings      string    `json:"settings,omitempty"` // JSON blob
	RetentionDays int       `json:"retentionDays"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// WorkspaceInput represents input for creating/updating a workspace
type WorkspaceInput struct {
	Name          string  `json:"name" validate:"required,min=1,max=100"`
	Description   string  `json:"description,omitempty"`
	Settings      *string `json:"settings,omitempty"`
	RetentionDays *int    `json:"retentionDays,omitempty" validate:"omitempty,min=1"`
}

var slugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateSlug converts a display name into a URL-safe slug
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = slugRegex.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
