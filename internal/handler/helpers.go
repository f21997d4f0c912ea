package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/middleware"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/pkg/pagination"
	"github.com/mlyard/mlyard/internal/validator"
)

// RequireWorkspaceID extracts the authenticated workspace from the
// request context. The returned error is a fiber.Error so the app
// error handler renders it when the handler bails.
func RequireWorkspaceID(c *fiber.Ctx) (uuid.UUID, error) {
	workspaceID, ok := middleware.GetWorkspaceID(c)
	if !ok {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Workspace not resolved from credentials")
	}
	return workspaceID, nil
}

// ParsePagination extracts limit and offset query parameters
func ParsePagination(c *fiber.Ctx) pagination.PageParams {
	return pagination.Normalize(
		parseQueryInt(c, "limit", pagination.DefaultLimit),
		parseQueryInt(c, "offset", 0),
	)
}

func parseQueryInt(c *fiber.Ctx, key string, defaultValue int) int {
	val := c.Query(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// parsePathUUID parses a UUID path parameter. On failure it returns a
// fiber.Error carrying a 400 for the app error handler.
func parsePathUUID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+param)
	}
	return id, nil
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorResponse creates a standardized JSON error response
func errorResponse(c *fiber.Ctx, statusCode int, message string) error {
	errorName := "Error"
	switch statusCode {
	case fiber.StatusBadRequest:
		errorName = "Bad Request"
	case fiber.StatusUnauthorized:
		errorName = "Unauthorized"
	case fiber.StatusForbidden:
		errorName = "Forbidden"
	case fiber.StatusNotFound:
		errorName = "Not Found"
	case fiber.StatusConflict:
		errorName = "Conflict"
	case fiber.StatusServiceUnavailable:
		errorName = "Service Unavailable"
	case fiber.StatusInternalServerError:
		errorName = "Internal Server Error"
	}

	return c.Status(statusCode).JSON(ErrorResponse{
		Error:   errorName,
		Message: message,
	})
}

// serviceError translates a service-layer error to an HTTP response.
// AppErrors carry their own status and message; anything else is logged
// and reported as a 500 with a generic message.
func serviceError(c *fiber.Ctx, logger *zap.Logger, err error, fallback string) error {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		if appErr.StatusCode >= 500 {
			logger.Error(fallback, zap.Error(err), zap.String("request_id", middleware.GetRequestID(c)))
		}
		return errorResponse(c, appErr.StatusCode, appErr.Message)
	}

	logger.Error(fallback, zap.Error(err), zap.String("request_id", middleware.GetRequestID(c)))
	return errorResponse(c, fiber.StatusInternalServerError, fallback)
}

// parseAndValidate decodes the request body and runs struct validation.
// A non-nil return means the handler must stop; the resulting
// fiber.Error is rendered by the app error handler.
func parseAndValidate(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if err := validator.Validate(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// invocationContext builds audit context from the request
func invocationContext(c *fiber.Ctx) (actorType, actor string) {
	if principal, ok := middleware.GetPrincipal(c); ok {
		return principal.Type, principal.Subject
	}
	return "system", ""
}
