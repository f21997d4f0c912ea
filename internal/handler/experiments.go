package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/service"
)

// ExperimentsHandler handles experiment endpoints
type ExperimentsHandler struct {
	experimentService *service.ExperimentService
	logger            *zap.Logger
}

// NewExperimentsHandler creates a new experiments handler
func NewExperimentsHandler(experimentService *service.ExperimentService, logger *zap.Logger) *ExperimentsHandler {
	return &ExperimentsHandler{
		experimentService: experimentService,
		logger:            logger,
	}
}

// Create handles POST /v1/experiments. With ?getOrCreate=true an
// existing active experiment with the same name is returned instead of
// a conflict, matching client set-experiment semantics.
func (h *ExperimentsHandler) Create(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	var input domain.ExperimentInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	var experiment *domain.Experiment
	if c.QueryBool("getOrCreate") {
		experiment, err = h.experimentService.GetOrCreate(c.Context(), workspaceID, &input)
	} else {
		experiment, err = h.experimentService.Create(c.Context(), workspaceID, &input)
	}
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to create experiment")
	}

	return c.Status(fiber.StatusCreated).JSON(experiment)
}

// Get handles GET /v1/experiments/:experimentId
func (h *ExperimentsHandler) Get(c *fiber.Ctx) error {
	experimentID, err := parsePathUUID(c, "experimentId")
	if err != nil {
		return err
	}

	experiment, err := h.experimentService.Get(c.Context(), experimentID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get experiment")
	}

	return c.JSON(experiment)
}

// GetByName handles GET /v1/experiments/by-name/:name
func (h *ExperimentsHandler) GetByName(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	experiment, err := h.experimentService.GetByName(c.Context(), workspaceID, c.Params("name"))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get experiment")
	}

	return c.JSON(experiment)
}

// List handles GET /v1/experiments
func (h *ExperimentsHandler) List(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	filter := &domain.ExperimentFilter{
		WorkspaceID: workspaceID,
		Search:      c.Query("search"),
	}
	if stage := c.Query("lifecycleStage"); stage != "" {
		s := domain.LifecycleStage(stage)
		if s != domain.LifecycleStageActive && s != domain.LifecycleStageDeleted {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid lifecycle stage")
		}
		filter.LifecycleStage = &s
	}

	list, err := h.experimentService.List(c.Context(), filter, ParsePagination(c))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to list experiments")
	}

	return c.JSON(list)
}

// Update handles PATCH /v1/experiments/:experimentId
func (h *ExperimentsHandler) Update(c *fiber.Ctx) error {
	experimentID, err := parsePathUUID(c, "experimentId")
	if err != nil {
		return err
	}

	var input domain.ExperimentUpdateInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	experiment, err := h.experimentService.Update(c.Context(), experimentID, &input)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to update experiment")
	}

	return c.JSON(experiment)
}

// Archive handles POST /v1/experiments/:experimentId/archive
func (h *ExperimentsHandler) Archive(c *fiber.Ctx) error {
	experimentID, err := parsePathUUID(c, "experimentId")
	if err != nil {
		return err
	}

	if err := h.experimentService.Archive(c.Context(), experimentID); err != nil {
		return serviceError(c, h.logger, err, "Failed to archive experiment")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Restore handles POST /v1/experiments/:experimentId/restore
func (h *ExperimentsHandler) Restore(c *fiber.Ctx) error {
	experimentID, err := parsePathUUID(c, "experimentId")
	if err != nil {
		return err
	}

	if err := h.experimentService.Restore(c.Context(), experimentID); err != nil {
		return serviceError(c, h.logger, err, "Failed to restore experiment")
	}

	return c.SendStatus(fiber.StatusNoContent)
}
