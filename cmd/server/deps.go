package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/config"
	"github.com/mlyard/mlyard/internal/middleware"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger

	Databases    *Databases
	Repositories *Repositories
	Services     *Services
	Handlers     *Handlers

	AuthMiddleware      *middleware.AuthMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware
}

// initDependencies initializes all dependencies
func initDependencies(cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	ctx := context.Background()

	dbs, err := initDatabases(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	repos := initRepositories(dbs)
	svcs := initServices(cfg, dbs, repos)
	handlers := initHandlers(dbs, svcs, logger)

	return &Dependencies{
		Config:              cfg,
		Logger:              logger,
		Databases:           dbs,
		Repositories:        repos,
		Services:            svcs,
		Handlers:            handlers,
		AuthMiddleware:      middleware.NewAuthMiddleware(svcs.Auth),
		RateLimitMiddleware: middleware.NewRateLimitMiddleware(dbs.Redis),
	}, nil
}

// Close closes all dependencies
func (d *Dependencies) Close() {
	if d.Databases != nil {
		d.Databases.Close()
	}
}
