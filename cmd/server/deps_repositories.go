package main

import (
	chrepo "github.com/mlyard/mlyard/internal/repository/clickhouse"
	pgrepo "github.com/mlyard/mlyard/internal/repository/postgres"
)

// Repositories holds all repository instances
type Repositories struct {
	// PostgreSQL repositories (metadata)
	Workspace  *pgrepo.WorkspaceRepository
	Experiment *pgrepo.ExperimentRepository
	Run        *pgrepo.RunRepository
	APIKey     *pgrepo.APIKeyRepository
	Audit      *pgrepo.AuditRepository
	Compute    *pgrepo.ComputeRepository
	Model      *pgrepo.ModelRepository
	Endpoint   *pgrepo.EndpointRepository

	// ClickHouse repositories (metric time series)
	Metric *chrepo.MetricRepository
}

// initRepositories initializes all repositories
func initRepositories(dbs *Databases) *Repositories {
	return &Repositories{
		Workspace:  pgrepo.NewWorkspaceRepository(dbs.Postgres),
		Experiment: pgrepo.NewExperimentRepository(dbs.Postgres),
		Run:        pgrepo.NewRunRepository(dbs.Postgres),
		APIKey:     pgrepo.NewAPIKeyRepository(dbs.Postgres),
		Audit:      pgrepo.NewAuditRepository(dbs.AuditDB),
		Compute:    pgrepo.NewComputeRepository(dbs.Postgres),
		Model:      pgrepo.NewModelRepository(dbs.Postgres),
		Endpoint:   pgrepo.NewEndpointRepository(dbs.Postgres),
		Metric:     chrepo.NewMetricRepository(dbs.ClickHouse),
	}
}
