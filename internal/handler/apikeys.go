package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/service"
)

// APIKeysHandler handles API key management endpoints
type APIKeysHandler struct {
	authService  *service.AuthService
	auditService *service.AuditService
	logger       *zap.Logger
}

// NewAPIKeysHandler creates a new API keys handler
func NewAPIKeysHandler(authService *service.AuthService, auditService *service.AuditService, logger *zap.Logger) *APIKeysHandler {
	return &APIKeysHandler{
		authService:  authService,
		auditService: auditService,
		logger:       logger,
	}
}

// Create handles POST /v1/api-keys. The secret key appears in this
// response only; it cannot be retrieved again.
func (h *APIKeysHandler) Create(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	var input domain.APIKeyInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	result, err := h.authService.CreateAPIKey(c.Context(), workspaceID, &input)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to create API key")
	}

	actorType, actor := invocationContext(c)
	h.auditService.LogAsync(&domain.AuditLogInput{
		WorkspaceID:  workspaceID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       domain.AuditActionAPIKeyCreated,
		ResourceType: domain.AuditResourceAPIKey,
		ResourceID:   result.APIKey.ID.String(),
		ResourceName: result.APIKey.Name,
		Description:  "API key created",
	})

	return c.Status(fiber.StatusCreated).JSON(result)
}

// Token handles POST /v1/auth/token. Exchanges the authenticated
// credential for a short-lived workspace JWT.
func (h *APIKeysHandler) Token(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	_, actor := invocationContext(c)
	token, err := h.authService.IssueToken(actor, workspaceID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to issue token")
	}

	return c.JSON(fiber.Map{
		"token":     token,
		"tokenType": "Bearer",
	})
}

// List handles GET /v1/api-keys
func (h *APIKeysHandler) List(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	keys, err := h.authService.ListAPIKeys(c.Context(), workspaceID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to list API keys")
	}

	return c.JSON(fiber.Map{
		"apiKeys": keys,
	})
}

// Revoke handles DELETE /v1/api-keys/:keyId
func (h *APIKeysHandler) Revoke(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	keyID, err := parsePathUUID(c, "keyId")
	if err != nil {
		return err
	}

	if err := h.authService.RevokeAPIKey(c.Context(), workspaceID, keyID); err != nil {
		return serviceError(c, h.logger, err, "Failed to revoke API key")
	}

	actorType, actor := invocationContext(c)
	h.auditService.LogAsync(&domain.AuditLogInput{
		WorkspaceID:  workspaceID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       domain.AuditActionAPIKeyRevoked,
		ResourceType: domain.AuditResourceAPIKey,
		ResourceID:   keyID.String(),
		Description:  "API key revoked",
	})

	return c.SendStatus(fiber.StatusNoContent)
}
