package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/service"
)

// ContextKey type for context keys
type ContextKey string

const (
	ContextKeyWorkspaceID ContextKey = "workspaceID"
	ContextKeyPrincipal   ContextKey = "principal"
)

// AuthMiddleware handles authentication
type AuthMiddleware struct {
	authService *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authService *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// RequireAuth validates either API key or JWT authentication. API keys
// are sent as "Authorization: Bearer <public>:<secret>" or via the
// X-API-Key header; anything else in the bearer slot is treated as a
// workspace token.
func (m *AuthMiddleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if publicKey, secretKey, ok := extractAPIKey(c); ok {
			key, err := m.authService.VerifyAPIKey(c.Context(), publicKey, secretKey)
			if err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error":   "Unauthorized",
					"message": "Invalid API key",
				})
			}

			c.Locals(string(ContextKeyWorkspaceID), key.WorkspaceID)
			c.Locals(string(ContextKeyPrincipal), &domain.Principal{
				Type:        "api_key",
				Subject:     key.PublicKey,
				WorkspaceID: key.WorkspaceID.String(),
				Scopes:      key.Scopes,
			})
			return c.Next()
		}

		if token := extractBearerToken(c); token != "" {
			claims, err := m.authService.ValidateToken(token)
			if err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error":   "Unauthorized",
					"message": "Invalid or expired token",
				})
			}

			workspaceID, err := uuid.Parse(claims.WorkspaceID)
			if err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error":   "Unauthorized",
					"message": "Invalid workspace in token",
				})
			}

			c.Locals(string(ContextKeyWorkspaceID), workspaceID)
			c.Locals(string(ContextKeyPrincipal), &domain.Principal{
				Type:        "user",
				Subject:     claims.Subject,
				WorkspaceID: claims.WorkspaceID,
			})
			return c.Next()
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "Unauthorized",
			"message": "Valid authentication required",
		})
	}
}

// RequireScope ensures the authenticated principal may perform a scoped
// operation. JWT principals pass unconditionally.
func (m *AuthMiddleware) RequireScope(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := GetPrincipal(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Unauthorized",
				"message": "Not authenticated",
			})
		}

		if !principal.HasScope(scope) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "Forbidden",
				"message": "API key is missing scope " + scope,
			})
		}

		return c.Next()
	}
}

// extractAPIKey extracts a public/secret API key pair from the request
func extractAPIKey(c *fiber.Ctx) (publicKey, secretKey string, ok bool) {
	candidate := ""

	auth := c.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		token := strings.TrimPrefix(auth, "Bearer ")
		if strings.HasPrefix(token, "pk-my-") {
			candidate = token
		}
	}

	if candidate == "" {
		candidate = c.Get("X-API-Key")
	}

	if candidate == "" {
		return "", "", false
	}

	parts := strings.SplitN(candidate, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}

	return parts[0], parts[1], true
}

// extractBearerToken extracts a JWT from the Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(token, "pk-my-") {
			return token
		}
	}
	return ""
}

// GetWorkspaceID gets the authenticated workspace ID from context
func GetWorkspaceID(c *fiber.Ctx) (uuid.UUID, bool) {
	workspaceID, ok := c.Locals(string(ContextKeyWorkspaceID)).(uuid.UUID)
	return workspaceID, ok
}

// GetPrincipal gets the authenticated principal from context
func GetPrincipal(c *fiber.Ctx) (*domain.Principal, bool) {
	principal, ok := c.Locals(string(ContextKeyPrincipal)).(*domain.Principal)
	return principal, ok
}
