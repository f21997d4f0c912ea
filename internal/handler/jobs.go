package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/service"
)

// JobsHandler handles compute target and training job endpoints
type JobsHandler struct {
	jobService   *service.JobService
	auditService *service.AuditService
	logger       *zap.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(jobService *service.JobService, auditService *service.AuditService, logger *zap.Logger) *JobsHandler {
	return &JobsHandler{
		jobService:   jobService,
		auditService: auditService,
		logger:       logger,
	}
}

// CreateTarget handles POST /v1/compute-targets
func (h *JobsHandler) CreateTarget(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	var input domain.ComputeTargetInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	target, err := h.jobService.CreateTarget(c.Context(), workspaceID, &input)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to create compute target")
	}

	return c.Status(fiber.StatusCreated).JSON(target)
}

// GetTarget handles GET /v1/compute-targets/:targetId
func (h *JobsHandler) GetTarget(c *fiber.Ctx) error {
	targetID, err := parsePathUUID(c, "targetId")
	if err != nil {
		return err
	}

	target, err := h.jobService.GetTarget(c.Context(), targetID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get compute target")
	}

	return c.JSON(target)
}

// ListTargets handles GET /v1/compute-targets
func (h *JobsHandler) ListTargets(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	targets, err := h.jobService.ListTargets(c.Context(), workspaceID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to list compute targets")
	}

	return c.JSON(fiber.Map{
		"targets": targets,
	})
}

// DeleteTarget handles DELETE /v1/compute-targets/:targetId
func (h *JobsHandler) DeleteTarget(c *fiber.Ctx) error {
	targetID, err := parsePathUUID(c, "targetId")
	if err != nil {
		return err
	}

	if err := h.jobService.DeleteTarget(c.Context(), targetID); err != nil {
		return serviceError(c, h.logger, err, "Failed to delete compute target")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Submit handles POST /v1/jobs
func (h *JobsHandler) Submit(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	var input domain.TrainingJobInput
	if err := parseAndValidate(c, &input); err != nil {
		return err
	}

	job, err := h.jobService.Submit(c.Context(), workspaceID, &input)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to submit job")
	}

	actorType, actor := invocationContext(c)
	h.auditService.LogAsync(&domain.AuditLogInput{
		WorkspaceID:  workspaceID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       domain.AuditActionJobSubmitted,
		ResourceType: domain.AuditResourceJob,
		ResourceID:   job.ID.String(),
		Description:  "job submitted to target " + input.TargetName,
	})

	return c.Status(fiber.StatusCreated).JSON(job)
}

// Get handles GET /v1/jobs/:jobId
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	jobID, err := parsePathUUID(c, "jobId")
	if err != nil {
		return err
	}

	job, err := h.jobService.GetJob(c.Context(), jobID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to get job")
	}

	return c.JSON(job)
}

// List handles GET /v1/jobs
func (h *JobsHandler) List(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	filter := &domain.TrainingJobFilter{
		WorkspaceID: workspaceID,
	}
	if status := c.Query("status"); status != "" {
		s := domain.JobStatus(status)
		switch s {
		case domain.JobStatusQueued, domain.JobStatusRunning, domain.JobStatusSucceeded,
			domain.JobStatusFailed, domain.JobStatusCanceled:
			filter.Status = &s
		default:
			return errorResponse(c, fiber.StatusBadRequest, "Invalid job status")
		}
	}

	list, err := h.jobService.ListJobs(c.Context(), filter, ParsePagination(c))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to list jobs")
	}

	return c.JSON(list)
}

// Cancel handles POST /v1/jobs/:jobId/cancel
func (h *JobsHandler) Cancel(c *fiber.Ctx) error {
	jobID, err := parsePathUUID(c, "jobId")
	if err != nil {
		return err
	}

	job, err := h.jobService.Cancel(c.Context(), jobID)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to cancel job")
	}

	actorType, actor := invocationContext(c)
	h.auditService.LogAsync(&domain.AuditLogInput{
		WorkspaceID:  job.WorkspaceID,
		ActorType:    actorType,
		Actor:        actor,
		Action:       domain.AuditActionJobCanceled,
		ResourceType: domain.AuditResourceJob,
		ResourceID:   job.ID.String(),
		Description:  "job canceled",
	})

	return c.JSON(job)
}
