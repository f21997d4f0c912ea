package main

import (
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/handler"
)

// Handlers holds all handler instances
type Handlers struct {
	Health      *handler.HealthHandler
	Workspaces  *handler.WorkspacesHandler
	Experiments *handler.ExperimentsHandler
	Runs        *handler.RunsHandler
	Artifacts   *handler.ArtifactsHandler
	Models      *handler.ModelsHandler
	Jobs        *handler.JobsHandler
	Endpoints   *handler.EndpointsHandler
	Invocations *handler.InvocationsHandler
	APIKeys     *handler.APIKeysHandler
	Audit       *handler.AuditHandler
	Events      *handler.EventsHandler
}

// initHandlers initializes all handlers
func initHandlers(dbs *Databases, svcs *Services, logger *zap.Logger) *Handlers {
	return &Handlers{
		Health:      handler.NewHealthHandler(dbs.Postgres.Pool, dbs.ClickHouse.Conn, dbs.Redis.Client, appVersion),
		Workspaces:  handler.NewWorkspacesHandler(svcs.Workspace, svcs.Audit, logger),
		Experiments: handler.NewExperimentsHandler(svcs.Experiment, logger),
		Runs:        handler.NewRunsHandler(svcs.Run, logger),
		Artifacts:   handler.NewArtifactsHandler(svcs.Artifact, logger),
		Models:      handler.NewModelsHandler(svcs.Model, svcs.Audit, logger),
		Jobs:        handler.NewJobsHandler(svcs.Job, svcs.Audit, logger),
		Endpoints:   handler.NewEndpointsHandler(svcs.Endpoint, svcs.Audit, logger),
		Invocations: handler.NewInvocationsHandler(svcs.Inference, logger),
		APIKeys:     handler.NewAPIKeysHandler(svcs.Auth, svcs.Audit, logger),
		Audit:       handler.NewAuditHandler(svcs.Audit, logger),
		Events:      handler.NewEventsHandler(dbs.Redis, svcs.Run, logger),
	}
}
