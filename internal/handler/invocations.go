package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/middleware"
	"github.com/mlyard/mlyard/internal/service"
)

// InvocationsHandler handles the inference hot path
type InvocationsHandler struct {
	inferenceService *service.InferenceService
	logger           *zap.Logger
}

// NewInvocationsHandler creates a new invocations handler
func NewInvocationsHandler(inferenceService *service.InferenceService, logger *zap.Logger) *InvocationsHandler {
	return &InvocationsHandler{
		inferenceService: inferenceService,
		logger:           logger,
	}
}

// Invoke handles POST /v1/endpoints/:name/invocations. The body is
// forwarded to the backing scorer after shape validation; the scorer's
// response comes back verbatim.
func (h *InvocationsHandler) Invoke(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	actorType, actor := invocationContext(c)
	result, err := h.inferenceService.Invoke(
		c.Context(),
		workspaceID,
		c.Params("name"),
		c.Body(),
		&service.InvocationContext{
			ActorType: actorType,
			Actor:     actor,
			IPAddress: c.IP(),
			RequestID: middleware.GetRequestID(c),
		},
	)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to invoke endpoint")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(result)
}

// SamplePayload handles GET /v1/endpoints/:name/sample-payload. Useful
// for checking the input shape an endpoint expects.
func (h *InvocationsHandler) SamplePayload(c *fiber.Ctx) error {
	workspaceID, err := RequireWorkspaceID(c)
	if err != nil {
		return err
	}

	instances := parseQueryInt(c, "instances", 1)
	if instances < 1 || instances > 16 {
		return errorResponse(c, fiber.StatusBadRequest, "instances must be between 1 and 16")
	}

	payload, err := h.inferenceService.SamplePayload(c.Context(), workspaceID, c.Params("name"), instances)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to build sample payload")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(payload)
}
