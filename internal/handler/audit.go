package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/service"
)

// AuditHandler handles audit trail query endpoints
type AuditHandler struct {
	auditService *service.AuditService
	logger       *zap.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditService *service.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		logger:       logger,
	}
}

// List handles GET /v1/audit-logs
func (h *AuditHandler) List(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	filter := &domain.AuditLogFilter{
		WorkspaceID: workspaceID,
	}
	if action := c.Query("action"); action != "" {
		a := domain.AuditAction(action)
		filter.Action = &a
	}
	if resourceType := c.Query("resourceType"); resourceType != "" {
		rt := domain.AuditResourceType(resourceType)
		filter.ResourceType = &rt
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid since timestamp, expected RFC3339")
		}
		filter.Since = &t
	}
	if until := c.Query("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid until timestamp, expected RFC3339")
		}
		filter.Until = &t
	}

	list, err := h.auditService.List(c.Context(), filter, ParsePagination(c))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to list audit logs")
	}

	return c.JSON(list)
}

// Get handles GET /v1/audit-logs/:logId
func (h *AuditHandler) Get(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	logID, err := parsePathUUID(c, "logId")
	if err != nil {
		return err
	}

	entry, err := h.auditService.Get(c.Context(), workspaceID, logID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get audit log")
	}

	return c.JSON(entry)
}
