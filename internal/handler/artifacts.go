package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/service"
)

// ArtifactsHandler handles run artifact endpoints
type ArtifactsHandler struct {
	artifactService *service.ArtifactService
	logger          *zap.Logger
}

// NewArtifactsHandler creates a new artifacts handler
func NewArtifactsHandler(artifactService *service.ArtifactService, logger *zap.Logger) *ArtifactsHandler {
	return &ArtifactsHandler{
		artifactService: artifactService,
		logger:          logger,
	}
}

// Upload handles POST /v1/runs/:runId/artifacts. The body is a multipart
// form with a "file" part and a "path" field naming the destination
// under the run's artifact root.
func (h *ArtifactsHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Missing file part")
	}

	artifactPath := c.FormValue("path")
	if artifactPath == "" {
		artifactPath = fileHeader.Filename
	}

	file, err := fileHeader.Open()
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Failed to read file part")
	}
	defer file.Close()

	info, err := h.artifactService.Upload(
		c.Context(),
		c.Params("runId"),
		artifactPath,
		file,
		fileHeader.Size,
		fileHeader.Header.Get("Content-Type"),
	)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to upload artifact")
	}

	return c.Status(fiber.StatusCreated).JSON(info)
}

// Download handles GET /v1/runs/:runId/artifacts/download?path=...
func (h *ArtifactsHandler) Download(c *fiber.Ctx) error {
	artifactPath := c.Query("path")
	if artifactPath == "" {
		return errorResponse(c, fiber.StatusBadRequest, "path query parameter is required")
	}

	reader, info, err := h.artifactService.Download(c.Context(), c.Params("runId"), artifactPath)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to download artifact")
	}

	c.Set(fiber.HeaderContentType, info.ContentType)
	if info.SizeBytes > 0 {
		c.Set(fiber.HeaderContentLength, strconv.FormatInt(info.SizeBytes, 10))
		return c.SendStream(reader, int(info.SizeBytes))
	}
	return c.SendStream(reader)
}

// List handles GET /v1/runs/:runId/artifacts?prefix=...
func (h *ArtifactsHandler) List(c *fiber.Ctx) error {
	list, err := h.artifactService.List(c.Context(), c.Params("runId"), c.Query("prefix"))
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to list artifacts")
	}

	return c.JSON(list)
}

// Presign handles GET /v1/runs/:runId/artifacts/presign?path=...
func (h *ArtifactsHandler) Presign(c *fiber.Ctx) error {
	artifactPath := c.Query("path")
	if artifactPath == "" {
		return errorResponse(c, fiber.StatusBadRequest, "path query parameter is required")
	}

	url, err := h.artifactService.PresignDownload(c.Context(), c.Params("runId"), artifactPath)
	if err != nil {
		return serviceError(c, h.logger, err, "Failed to presign artifact URL")
	}

	return c.JSON(fiber.Map{
		"url":       url,
		"expiresIn": int(service.PresignExpiry.Seconds()),
	})
}
