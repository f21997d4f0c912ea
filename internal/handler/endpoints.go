package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/service"
)

// ValidEndpointStates are the states accepted as a list filter
var validEndpointStates = map[domain.EndpointState]bool{
	domain.EndpointStatePending:      true,
	domain.EndpointStateProvisioning: true,
	domain.EndpointStateReady:        true,
	domain.EndpointStateFailed:       true,
	domain.EndpointStateDeleting:     true,
}

// EndpointsHandler handles endpoint lifecycle endpoints
type EndpointsHandler struct {
	endpointService *service.EndpointService
	auditService    *service.AuditService
	logger          *zap.Logger
}

// NewEndpointsHandler creates a new endpoints handler
func NewEndpointsHandler(endpointService *service.EndpointService, auditService *service.AuditService, logger *zap.Logger) *EndpointsHandler {
	return &EndpointsHandler{
		endpointService: endpointService,
		auditService:    auditService,
		logger:          logger,
	}
}

// Deploy handles POST /v1/endpoints
func (h *EndpointsHandler) Deploy(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	var input domain.EndpointInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	ep, err := h.endpointService.Deploy(c.Context(), workspaceID, &input)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to deploy endpoint")
	}

	actorType, actor := invocationContext(c)
	h.auditService.LogAsync(&domain.AuditLogInput{
		WorkspaceID:  workspaceID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       domain.AuditActionEndpointDeployed,
		ResourceType: domain.AuditResourceEndpoint,
		ResourceID:   ep.ID.String(),
		ResourceName: ep.Name,
		Description:  "deployment requested",
	})

	return c.Status(fiber.StatusAccepted).JSON(ep)
}

// Get handles GET /v1/endpoints/:endpointId
func (h *EndpointsHandler) Get(c *fiber.Ctx) error {
	endpointID, err := parsePathUUID(c, "endpointId")
	if err != nil {
		return err
	}

	ep, err := h.endpointService.Get(c.Context(), endpointID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get endpoint")
	}

	return c.JSON(ep)
}

// GetByName handles GET /v1/endpoints/by-name/:name
func (h *EndpointsHandler) GetByName(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	ep, err := h.endpointService.GetByName(c.Context(), workspaceID, c.Params("name"))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get endpoint")
	}

	return c.JSON(ep)
}

// List handles GET /v1/endpoints
func (h *EndpointsHandler) List(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	filter := &domain.EndpointFilter{
		WorkspaceID: workspaceID,
	}
	if state := c.Query("state"); state != "" {
		s := domain.EndpointState(state)
		if !validEndpointStates[s] {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid endpoint state")
		}
		filter.State = &s
	}

	list, err := h.endpointService.List(c.Context(), filter, ParsePagination(c))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to list endpoints")
	}

	return c.JSON(list)
}

// UpdateModelVersion handles PATCH /v1/endpoints/:endpointId
func (h *EndpointsHandler) UpdateModelVersion(c *fiber.Ctx) error {
	endpointID, err := parsePathUUID(c, "endpointId")
	if err != nil {
		return err
	}

	var input domain.EndpointUpdateInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	ep, err := h.endpointService.UpdateModelVersion(c.Context(), endpointID, &input)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to update endpoint")
	}

	actorType, actor := invocationContext(c)
	h.auditService.LogAsync(&domain.AuditLogInput{
		WorkspaceID:  ep.WorkspaceID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       domain.AuditActionEndpointUpdated,
		ResourceType: domain.AuditResourceEndpoint,
		ResourceID:   ep.ID.String(),
		ResourceName: ep.Name,
		Description:  "model version updated",
	})

	return c.JSON(ep)
}

// Teardown handles DELETE /v1/endpoints/:endpointId
func (h *EndpointsHandler) Teardown(c *fiber.Ctx) error {
	endpointID, err := parsePathUUID(c, "endpointId")
	if err != nil {
		return err
	}

	ep, err := h.endpointService.Get(c.Context(), endpointID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get endpoint")
	}

	if err := h.endpointService.Teardown(c.Context(), endpointID); err != nil {
		return serviceError(c, h.logger, err, "Failed to tear down endpoint")
	}

	actorType, actor := invocationContext(c)
	h.auditService.LogAsync(&domain.AuditLogInput{
		WorkspaceID:  ep.WorkspaceID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       domain.AuditActionEndpointDeleted,
		ResourceType: domain.AuditResourceEndpoint,
		ResourceID:   ep.ID.String(),
		ResourceName: ep.Name,
		Description:  "teardown requested",
	})

	return c.SendStatus(fiber.StatusAccepted)
}
