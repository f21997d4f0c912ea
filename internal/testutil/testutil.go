// Package testutil provides shared helpers for handler and middleware
// tests.
package testutil

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/middleware"
)

// WithWorkspace injects an authenticated workspace and user principal,
// standing in for the auth middleware.
func WithWorkspace(workspaceID uuid.UUID) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(string(middleware.ContextKeyWorkspaceID), workspaceID)
		c.Locals(string(middleware.ContextKeyPrincipal), &domain.Principal{
			Type:        "user",
			Subject:     "tester",
			WorkspaceID: workspaceID.String(),
		})
		return c.Next()
	}
}

// WithAPIKey injects an API key principal carrying the given scopes.
func WithAPIKey(workspaceID uuid.UUID, scopes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(string(middleware.ContextKeyWorkspaceID), workspaceID)
		c.Locals(string(middleware.ContextKeyPrincipal), &domain.Principal{
			Type:        "api_key",
			Subject:     "pk-my-test",
			WorkspaceID: workspaceID.String(),
			Scopes:      scopes,
		})
		return c.Next()
	}
}
