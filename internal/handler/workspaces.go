package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/service"
)

// WorkspacesHandler handles workspace endpoints
type WorkspacesHandler struct {
	workspaceService *service.WorkspaceService
	auditService     *service.AuditService
	logger           *zap.Logger
}

// NewWorkspacesHandler creates a new workspaces handler
func NewWorkspacesHandler(workspaceService *service.WorkspaceService, auditService *service.AuditService, logger *zap.Logger) *WorkspacesHandler {
	return &WorkspacesHandler{
		workspaceService: workspaceService,
		auditService:     auditService,
		logger:           logger,
	}
}

// Create handles POST /v1/workspaces
func (h *WorkspacesHandler) Create(c *fiber.Ctx) error {
	var input domain.WorkspaceInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	workspace, err := h.workspaceService.Create(c.Context(), &input)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to create workspace")
	}

	actorType, actor := invocationContext(c)
	h.auditService.LogAsync(&domain.AuditLogInput{
		WorkspaceID:  workspace.ID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       domain.AuditActionWorkspaceCreated,
		ResourceType: domain.AuditResourceWorkspace,
		ResourceID:   workspace.ID.String(),
		ResourceName: workspace.Name,
		Description:  "workspace created",
	})

	return c.Status(fiber.StatusCreated).JSON(workspace)
}

// Get handles GET /v1/workspaces/:workspaceId
func (h *WorkspacesHandler) Get(c *fiber.Ctx) error {
	workspaceID, err := parsePathUUID(c, "workspaceId")
	if err != nil {
		return err
	}

	workspace, err := h.workspaceService.Get(c.Context(), workspaceID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get workspace")
	}

	return c.JSON(workspace)
}

// GetBySlug handles GET /v1/workspaces/slug/:slug
func (h *WorkspacesHandler) GetBySlug(c *fiber.Ctx) error {
	workspace, err := h.workspaceService.GetBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get workspace")
	}

	return c.JSON(workspace)
}

// List handles GET /v1/workspaces
func (h *WorkspacesHandler) List(c *fiber.Ctx) error {
	workspaces, err := h.workspaceService.List(c.Context())
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to list workspaces")
	}

	return c.JSON(fiber.Map{
		"workspaces": workspaces,
	})
}

// Update handles PATCH /v1/workspaces/:workspaceId
func (h *WorkspacesHandler) Update(c *fiber.Ctx) error {
	workspaceID, err := parsePathUUID(c, "workspaceId")
	if err != nil {
		return err
	}

	var input domain.WorkspaceInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	workspace, err := h.workspaceService.Update(c.Context(), workspaceID, &input)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to update workspace")
	}

	actorType, actor := invocationContext(c)
	h.auditService.LogAsync(&domain.AuditLogInput{
		WorkspaceID:  workspace.ID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       domain.AuditActionWorkspaceUpdated,
		ResourceType: domain.AuditResourceWorkspace,
		ResourceID:   workspace.ID.String(),
		ResourceName: workspace.Name,
		Description:  "workspace updated",
	})

	return c.JSON(workspace)
}

// Delete handles DELETE /v1/workspaces/:workspaceId
func (h *WorkspacesHandler) Delete(c *fiber.Ctx) error {
	workspaceID, err := parsePathUUID(c, "workspaceId")
	if err != nil {
		return err
	}

	if err := h.workspaceService.Delete(c.Context(), workspaceID); err != nil {
		return serviceError(c, h.logger, err, "Failed to delete workspace")
	}

	actorType, actor := invocationContext(c)
	h.auditService.LogAsync(&domain.AuditLogInput{
		WorkspaceID:  workspaceID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       domain.AuditActionWorkspaceDeleted,
		ResourceType: domain.AuditResourceWorkspace,
		ResourceID:   workspaceID.String(),
		Description:  "workspace deleted",
	})

	return c.SendStatus(fiber.StatusNoContent)
}
