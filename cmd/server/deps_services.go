package main

import (
	"time"

	"github.com/mlyard/mlyard/internal/config"
	"github.com/mlyard/mlyard/internal/inference"
	"github.com/mlyard/mlyard/internal/pkg/database"
	"github.com/mlyard/mlyard/internal/service"
	"github.com/mlyard/mlyard/internal/storage"
)

// Services holds all service instances
type Services struct {
	Workspace  *service.WorkspaceService
	Experiment *service.ExperimentService
	Run        *service.RunService
	Artifact   *service.ArtifactService
	Model      *service.ModelService
	Job        *service.JobService
	Endpoint   *service.EndpointService
	Inference  *service.InferenceService
	Auth       *service.AuthService
	Audit      *service.AuditService

	ArtifactStore *storage.ArtifactStore
}

// initServices initializes all services
func initServices(cfg *config.Config, dbs *Databases, repos *Repositories) *Services {
	svcs := &Services{}

	svcs.ArtifactStore = storage.NewArtifactStore(dbs.Minio, cfg.MinIO.Bucket)

	svcs.Audit = service.NewAuditService(repos.Audit)
	svcs.Auth = service.NewAuthService(cfg.JWT, repos.APIKey)
	svcs.Workspace = service.NewWorkspaceService(repos.Workspace)
	svcs.Experiment = service.NewExperimentService(repos.Experiment, repos.Workspace)

	svcs.Run = service.NewRunService(
		repos.Run,
		repos.Metric,
		repos.Experiment,
		dbs.Redis,
		svcs.ArtifactStore,
		dbs.AsynqClient,
		cfg.Export.Enabled,
	)

	svcs.Artifact = service.NewArtifactService(svcs.ArtifactStore, repos.Run)
	svcs.Model = service.NewModelService(repos.Model, repos.Run)
	svcs.Job = service.NewJobService(repos.Compute, repos.Experiment, svcs.Run, dbs.AsynqClient)

	routeCache := database.NewCache(dbs.Redis, time.Duration(cfg.Inference.RouteCacheTTLSec)*time.Second)
	svcs.Endpoint = service.NewEndpointService(repos.Endpoint, repos.Model, routeCache, dbs.AsynqClient)

	scorer := inference.NewScorerClient(
		time.Duration(cfg.Inference.TimeoutSec)*time.Second,
		cfg.Inference.MaxBodyBytes,
	)
	svcs.Inference = service.NewInferenceService(svcs.Endpoint, scorer, svcs.Audit)

	return svcs
}
