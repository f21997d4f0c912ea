package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// invocationsPerMinute caps inference traffic per endpoint so a hot
// model cannot starve the tracking API.
const invocationsPerMinute = 600

// registerRoutes registers all HTTP routes
func registerRoutes(app *fiber.App, deps *Dependencies) {
	h := deps.Handlers

	// Health and metrics (no auth required)
	h.Health.RegisterRoutes(app)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/v1")

	// Workspace creation is the bootstrap entry point; everything it
	// returns is needed to mint the first credential.
	v1.Post("/workspaces", h.Workspaces.Create)

	auth := deps.AuthMiddleware
	api := v1.Group("", auth.RequireAuth())
	if deps.Config.RateLimit.Enabled {
		api.Use(deps.RateLimitMiddleware.Handler())
	}

	// Auth
	api.Post("/auth/token", h.APIKeys.Token)
	api.Post("/api-keys", auth.RequireScope("admin:write"), h.APIKeys.Create)
	api.Get("/api-keys", auth.RequireScope("admin:read"), h.APIKeys.List)
	api.Delete("/api-keys/:keyId", auth.RequireScope("admin:write"), h.APIKeys.Revoke)

	// Workspaces
	api.Get("/workspaces", h.Workspaces.List)
	api.Get("/workspaces/slug/:slug", h.Workspaces.GetBySlug)
	api.Get("/workspaces/:workspaceId", h.Workspaces.Get)
	api.Patch("/workspaces/:workspaceId", auth.RequireScope("admin:write"), h.Workspaces.Update)
	api.Delete("/workspaces/:workspaceId", auth.RequireScope("admin:write"), h.Workspaces.Delete)

	// Experiments
	api.Post("/experiments", auth.RequireScope("runs:write"), h.Experiments.Create)
	api.Get("/experiments", auth.RequireScope("runs:read"), h.Experiments.List)
	api.Get("/experiments/by-name/:name", auth.RequireScope("runs:read"), h.Experiments.GetByName)
	api.Get("/experiments/:experimentId", auth.RequireScope("runs:read"), h.Experiments.Get)
	api.Patch("/experiments/:experimentId", auth.RequireScope("runs:write"), h.Experiments.Update)
	api.Post("/experiments/:experimentId/archive", auth.RequireScope("runs:write"), h.Experiments.Archive)
	api.Post("/experiments/:experimentId/restore", auth.RequireScope("runs:write"), h.Experiments.Restore)

	// Runs
	api.Post("/experiments/:experimentId/runs", auth.RequireScope("runs:write"), h.Runs.Create)
	api.Post("/experiments/:experimentId/runs/search", auth.RequireScope("runs:read"), h.Runs.Search)
	api.Get("/runs/:runId", auth.RequireScope("runs:read"), h.Runs.Get)
	api.Put("/runs/:runId/status", auth.RequireScope("runs:write"), h.Runs.UpdateStatus)
	api.Post("/runs/:runId/params", auth.RequireScope("runs:write"), h.Runs.LogParams)
	api.Post("/runs/:runId/tags", auth.RequireScope("runs:write"), h.Runs.SetTags)
	api.Delete("/runs/:runId/tags/:key", auth.RequireScope("runs:write"), h.Runs.DeleteTag)
	api.Post("/runs/:runId/terminate", auth.RequireScope("runs:write"), h.Runs.Terminate)
	api.Delete("/runs/:runId", auth.RequireScope("runs:delete"), h.Runs.Delete)

	// Metrics
	api.Post("/runs/:runId/metrics", auth.RequireScope("metrics:write"), h.Runs.LogMetrics)
	api.Get("/runs/:runId/metrics", auth.RequireScope("metrics:read"), h.Runs.GetLatestMetrics)
	api.Get("/runs/:runId/metrics/:name", auth.RequireScope("metrics:read"), h.Runs.GetMetricHistory)

	// Live run events (SSE)
	api.Get("/runs/:runId/events", auth.RequireScope("runs:read"), h.Events.Stream)

	// Artifacts
	api.Post("/runs/:runId/artifacts", auth.RequireScope("artifacts:write"), h.Artifacts.Upload)
	api.Get("/runs/:runId/artifacts", auth.RequireScope("artifacts:read"), h.Artifacts.List)
	api.Get("/runs/:runId/artifacts/download", auth.RequireScope("artifacts:read"), h.Artifacts.Download)
	api.Get("/runs/:runId/artifacts/presign", auth.RequireScope("artifacts:read"), h.Artifacts.Presign)

	// Model registry
	api.Post("/models", auth.RequireScope("models:write"), h.Models.Register)
	api.Get("/models", auth.RequireScope("models:read"), h.Models.List)
	api.Get("/models/by-name/:name", auth.RequireScope("models:read"), h.Models.GetByName)
	api.Get("/models/:modelId", auth.RequireScope("models:read"), h.Models.Get)
	api.Delete("/models/:modelId", auth.RequireScope("models:delete"), h.Models.Delete)
	api.Post("/models/:modelId/versions", auth.RequireScope("models:write"), h.Models.CreateVersion)
	api.Get("/models/:modelId/versions", auth.RequireScope("models:read"), h.Models.ListVersions)
	api.Get("/models/:modelId/versions/:version", auth.RequireScope("models:read"), h.Models.GetVersion)
	api.Post("/models/:modelId/versions/:version/stage", auth.RequireScope("models:write"), h.Models.TransitionStage)

	// Compute targets
	api.Post("/compute-targets", auth.RequireScope("jobs:write"), h.Jobs.CreateTarget)
	api.Get("/compute-targets", auth.RequireScope("jobs:read"), h.Jobs.ListTargets)
	api.Get("/compute-targets/:targetId", auth.RequireScope("jobs:read"), h.Jobs.GetTarget)
	api.Delete("/compute-targets/:targetId", auth.RequireScope("jobs:write"), h.Jobs.DeleteTarget)

	// Training jobs
	api.Post("/jobs", auth.RequireScope("jobs:write"), h.Jobs.Submit)
	api.Get("/jobs", auth.RequireScope("jobs:read"), h.Jobs.List)
	api.Get("/jobs/:jobId", auth.RequireScope("jobs:read"), h.Jobs.Get)
	api.Post("/jobs/:jobId/cancel", auth.RequireScope("jobs:write"), h.Jobs.Cancel)

	// Endpoints
	api.Post("/endpoints", auth.RequireScope("endpoints:write"), h.Endpoints.Deploy)
	api.Get("/endpoints", auth.RequireScope("endpoints:read"), h.Endpoints.List)
	api.Get("/endpoints/by-name/:name", auth.RequireScope("endpoints:read"), h.Endpoints.GetByName)
	api.Get("/endpoints/:endpointId", auth.RequireScope("endpoints:read"), h.Endpoints.Get)
	api.Patch("/endpoints/:endpointId", auth.RequireScope("endpoints:write"), h.Endpoints.UpdateModelVersion)
	api.Delete("/endpoints/:endpointId", auth.RequireScope("endpoints:write"), h.Endpoints.Teardown)

	// Inference
	api.Post("/endpoints/:name/invocations",
		auth.RequireScope("endpoints:invoke"),
		deps.RateLimitMiddleware.InvocationRateLimit(invocationsPerMinute),
		h.Invocations.Invoke)
	api.Get("/endpoints/:name/sample-payload", auth.RequireScope("endpoints:read"), h.Invocations.SamplePayload)

	// Audit log
	api.Get("/audit-logs", auth.RequireScope("admin:read"), h.Audit.List)
	api.Get("/audit-logs/:logId", auth.RequireScope("admin:read"), h.Audit.Get)
}
