package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/service"
)

// RunsHandler handles run tracking endpoints
type RunsHandler struct {
	runService *service.RunService
	logger     *zap.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(runService *service.RunService, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{
		runService: runService,
		logger:     logger,
	}
}

// Create handles POST /v1/experiments/:experimentId/runs
func (h *RunsHandler) Create(c *fiber.Ctx) error {
	experimentID, err := parsePathUUID(c, "experimentId")
	if err != nil {
		return err
	}

	var input domain.RunInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	run, err := h.runService.Create(c.Context(), experimentID, &input, domain.RunSourceLocal)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to create run")
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

// Get handles GET /v1/runs/:runId
func (h *RunsHandler) Get(c *fiber.Ctx) error {
	run, err := h.runService.Get(c.Context(), c.Params("runId"))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get run")
	}

	return c.JSON(run)
}

// UpdateStatus handles PUT /v1/runs/:runId/status
func (h *RunsHandler) UpdateStatus(c *fiber.Ctx) error {
	var input struct {
		Status domain.RunStatus `json:"status" validate:"required,oneof=scheduled running completed failed killed"`
	}
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	run, err := h.runService.UpdateStatus(c.Context(), c.Params("runId"), input.Status)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to update run status")
	}

	return c.JSON(run)
}

// LogParams handles POST /v1/runs/:runId/params
func (h *RunsHandler) LogParams(c *fiber.Ctx) error {
	var input struct {
		Params []domain.ParamEntry `json:"params" validate:"required,min=1,max=200,dive"`
	}
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	if err := h.runService.LogParams(c.Context(), c.Params("runId"), input.Params); err != nil {
		return serviceError(c, h.logger, err, "Failed to log params")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// SetTags handles POST /v1/runs/:runId/tags
func (h *RunsHandler) SetTags(c *fiber.Ctx) error {
	var input struct {
		Tags []domain.TagEntry `json:"tags" validate:"required,min=1,max=200,dive"`
	}
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	if err := h.runService.SetTags(c.Context(), c.Params("runId"), input.Tags); err != nil {
		return serviceError(c, h.logger, err, "Failed to set tags")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteTag handles DELETE /v1/runs/:runId/tags/:key
func (h *RunsHandler) DeleteTag(c *fiber.Ctx) error {
	if err := h.runService.DeleteTag(c.Context(), c.Params("runId"), c.Params("key")); err != nil {
		return serviceError(c, h.logger, err, "Failed to delete tag")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// LogMetrics handles POST /v1/runs/:runId/metrics
func (h *RunsHandler) LogMetrics(c *fiber.Ctx) error {
	var batch domain.MetricBatch
	if err := parseAndValidate(c, &batch); err != nil {
		return err
	}

	if err := h.runService.LogMetrics(c.Context(), c.Params("runId"), &batch); err != nil {
		return serviceError(c, h.logger, err, "Failed to log metrics")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetMetricHistory handles GET /v1/runs/:runId/metrics/:name
func (h *RunsHandler) GetMetricHistory(c *fiber.Ctx) error {
	series, err := h.runService.GetMetricHistory(c.Context(), c.Params("runId"), c.Params("name"))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get metric history")
	}

	return c.JSON(series)
}

// GetLatestMetrics handles GET /v1/runs/:runId/metrics
func (h *RunsHandler) GetLatestMetrics(c *fiber.Ctx) error {
	latest, err := h.runService.GetLatestMetrics(c.Context(), c.Params("runId"))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get latest metrics")
	}

	return c.JSON(fiber.Map{
		"runId":   c.Params("runId"),
		"metrics": latest,
	})
}

// Search handles POST /v1/experiments/:experimentId/runs/search
func (h *RunsHandler) Search(c *fiber.Ctx) error {
	experimentID, err := parsePathUUID(c, "experimentId")
	if err != nil {
		return err
	}

	var input struct {
		Status    *domain.RunStatus `json:"status,omitempty" validate:"omitempty,oneof=scheduled running completed failed killed"`
		SortBy    string            `json:"sortBy,omitempty" validate:"omitempty,oneof=start_time metric"`
		Metric    string            `json:"metric,omitempty"`
		Ascending bool              `json:"ascending,omitempty"`
	}
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	filter := &domain.RunFilter{
		ExperimentID: experimentID,
		Status:       input.Status,
		SortKey:      domain.RunSortStartTime,
		Ascending:    input.Ascending,
	}
	if input.SortBy == string(domain.RunSortMetric) {
		if input.Metric == "" {
			return errorResponse(c, fiber.StatusBadRequest, "metric is required when sorting by metric")
		}
		filter.SortKey = domain.RunSortMetric
		filter.SortMetric = input.Metric
	}

	list, err := h.runService.Search(c.Context(), filter, ParsePagination(c))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to search runs")
	}

	return c.JSON(list)
}

// Terminate handles POST /v1/runs/:runId/terminate
func (h *RunsHandler) Terminate(c *fiber.Ctx) error {
	run, err := h.runService.Terminate(c.Context(), c.Params("runId"))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to terminate run")
	}

	return c.JSON(run)
}

// Delete handles DELETE /v1/runs/:runId
func (h *RunsHandler) Delete(c *fiber.Ctx) error {
	if err := h.runService.Delete(c.Context(), c.Params("runId")); err != nil {
		return serviceError(c, h.logger, err, "Failed to delete run")
	}

	return c.SendStatus(fiber.StatusNoContent)
}
