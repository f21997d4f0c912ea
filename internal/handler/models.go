package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/middleware"
	"github.com/mlyard/mlyard/internal/service"
)

// ModelsHandler handles model registry endpoints
type ModelsHandler struct {
	modelService *service.ModelService
	auditService *service.AuditService
	logger       *zap.Logger
}

// NewModelsHandler creates a new models handler
func NewModelsHandler(modelService *service.ModelService, auditService *service.AuditService, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{
		modelService: modelService,
		auditService: auditService,
		logger:       logger,
	}
}

// Register handles POST /v1/models
func (h *ModelsHandler) Register(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	var input domain.RegisteredModelInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	model, err := h.modelService.Register(c.Context(), workspaceID, &input)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to register model")
	}

	actorType, actor := invocationContext(c)
	h.auditService.LogAsync(&domain.AuditLogInput{
		WorkspaceID:  workspaceID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       domain.AuditActionModelRegistered,
		ResourceType: domain.AuditResourceModel,
		ResourceID:   model.ID.String(),
		ResourceName: model.Name,
		Description:  "model registered",
	})

	return c.Status(fiber.StatusCreated).JSON(model)
}

// Get handles GET /v1/models/:modelId
func (h *ModelsHandler) Get(c *fiber.Ctx) error {
	modelID, err := parsePathUUID(c, "modelId")
	if err != nil {
		return err
	}

	model, err := h.modelService.Get(c.Context(), modelID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get model")
	}

	return c.JSON(model)
}

// GetByName handles GET /v1/models/by-name/:name
func (h *ModelsHandler) GetByName(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	model, err := h.modelService.GetByName(c.Context(), workspaceID, c.Params("name"))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get model")
	}

	return c.JSON(model)
}

// List handles GET /v1/models
func (h *ModelsHandler) List(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	filter := &domain.RegisteredModelFilter{
		WorkspaceID: workspaceID,
		Search:      c.Query("search"),
	}

	list, err := h.modelService.List(c.Context(), filter, ParsePagination(c))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to list models")
	}

	return c.JSON(list)
}

// Delete handles DELETE /v1/models/:modelId
func (h *ModelsHandler) Delete(c *fiber.Ctx) error {
	modelID, err := parsePathUUID(c, "modelId")
	if err != nil {
		return err
	}

	if err := h.modelService.Delete(c.Context(), modelID); err != nil {
		return serviceError(c, h.logger, err, "Failed to delete model")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// CreateVersion handles POST /v1/models/:modelId/versions
func (h *ModelsHandler) CreateVersion(c *fiber.Ctx) error {
	modelID, err := parsePathUUID(c, "modelId")
	if err != nil {
		return err
	}

	var input domain.ModelVersionInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	mv, err := h.modelService.CreateVersion(c.Context(), modelID, &input)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to create model version")
	}

	return c.Status(fiber.StatusCreated).JSON(mv)
}

// ListVersions handles GET /v1/models/:modelId/versions
func (h *ModelsHandler) ListVersions(c *fiber.Ctx) error {
	modelID, err := parsePathUUID(c, "modelId")
	if err != nil {
		return err
	}

	versions, err := h.modelService.ListVersions(c.Context(), modelID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to list model versions")
	}

	return c.JSON(fiber.Map{
		"modelId":  modelID,
		"versions": versions,
	})
}

// GetVersion handles GET /v1/models/:modelId/versions/:version
func (h *ModelsHandler) GetVersion(c *fiber.Ctx) error {
	modelID, err := parsePathUUID(c, "modelId")
	if err != nil {
		return err
	}

	version, err := parseVersionNumber(c)
	if err != nil {
		return err
	}

	mv, err := h.modelService.GetVersion(c.Context(), modelID, version)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get model version")
	}

	return c.JSON(mv)
}

// TransitionStage handles POST /v1/models/:modelId/versions/:version/stage
func (h *ModelsHandler) TransitionStage(c *fiber.Ctx) error {
	modelID, err := parsePathUUID(c, "modelId")
	if err != nil {
		return err
	}

	version, err := parseVersionNumber(c)
	if err != nil {
		return err
	}

	var input domain.StageTransitionInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	mv, err := h.modelService.TransitionStage(c.Context(), modelID, version, &input)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to transition model stage")
	}

	actorType, actor := invocationContext(c)
	if workspaceID, ok := middleware.GetWorkspaceID(c); ok {
		h.auditService.LogAsync(&domain.AuditLogInput{
			WorkspaceID:  workspaceID,
			ActorType:    actorType,
			Actor:        actor,
			Action:       domain.AuditActionStageTransition,
			ResourceType: domain.AuditResourceModel,
			ResourceID:   mv.ID.String(),
			Description:  "stage set to " + string(mv.Stage),
		})
	}

	return c.JSON(mv)
}

func parseVersionNumber(c *fiber.Ctx) (int, error) {
	version, err := strconv.Atoi(c.Params("version"))
	if err != nil || version < 1 {
		return 0, errorResponse(c, fiber.StatusBadRequest, "Invalid version number")
	}
	return version, nil
}
