package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/config"
	"github.com/mlyard/mlyard/internal/inference"
	"github.com/mlyard/mlyard/internal/pkg/database"
	"github.com/mlyard/mlyard/internal/pkg/logger"
	chrepo "github.com/mlyard/mlyard/internal/repository/clickhouse"
	pgrepo "github.com/mlyard/mlyard/internal/repository/postgres"
	"github.com/mlyard/mlyard/internal/service"
	"github.com/mlyard/mlyard/internal/storage"
	"github.com/mlyard/mlyard/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Log
	defer logger.Sync()

	log.Info("starting worker service")

	deps, cleanup, err := initWorkerDependencies(cfg)
	if err != nil {
		log.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer cleanup()

	workerServer, err := worker.NewServer(log, cfg, deps)
	if err != nil {
		log.Fatal("failed to create worker server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- workerServer.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down worker...")
		workerServer.Stop()
	case err := <-errCh:
		if err != nil {
			log.Error("worker server error", zap.Error(err))
		}
	}

	log.Info("worker stopped")
}

// initWorkerDependencies wires the repositories and services the
// workers consume
func initWorkerDependencies(cfg *config.Config) (*worker.Dependencies, func(), error) {
	ctx := context.Background()

	pgDB, err := database.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	chDB, err := database.NewClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		pgDB.Close()
		return nil, nil, fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}

	redisDB, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		_ = chDB.Close()
		pgDB.Close()
		return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	minioClient, err := initMinio(ctx, cfg)
	if err != nil {
		_ = redisDB.Close()
		_ = chDB.Close()
		pgDB.Close()
		return nil, nil, fmt.Errorf("failed to initialize MinIO: %w", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	workspaceRepo := pgrepo.NewWorkspaceRepository(pgDB)
	experimentRepo := pgrepo.NewExperimentRepository(pgDB)
	runRepo := pgrepo.NewRunRepository(pgDB)
	computeRepo := pgrepo.NewComputeRepository(pgDB)
	modelRepo := pgrepo.NewModelRepository(pgDB)
	endpointRepo := pgrepo.NewEndpointRepository(pgDB)
	metricRepo := chrepo.NewMetricRepository(chDB)

	artifactStore := storage.NewArtifactStore(minioClient, cfg.MinIO.Bucket)

	runService := service.NewRunService(
		runRepo,
		metricRepo,
		experimentRepo,
		redisDB,
		artifactStore,
		asynqClient,
		cfg.Export.Enabled,
	)

	routeCache := database.NewCache(redisDB, time.Duration(cfg.Inference.RouteCacheTTLSec)*time.Second)
	endpointService := service.NewEndpointService(endpointRepo, modelRepo, routeCache, asynqClient)

	scorer := inference.NewScorerClient(
		time.Duration(cfg.Inference.TimeoutSec)*time.Second,
		cfg.Inference.MaxBodyBytes,
	)

	deps := &worker.Dependencies{
		RunService:      runService,
		EndpointService: endpointService,
		ComputeRepo:     computeRepo,
		MetricRepo:      metricRepo,
		RunRepo:         runRepo,
		WorkspaceRepo:   workspaceRepo,
		RunSweeper:      runRepo,
		ArtifactStore:   artifactStore,
		HealthProber:    scorer,
	}

	cleanup := func() {
		asynqClient.Close()
		_ = redisDB.Close()
		_ = chDB.Close()
		pgDB.Close()
	}

	return deps, cleanup, nil
}

// initMinio initializes the MinIO client and ensures the artifact
// bucket exists
func initMinio(ctx context.Context, cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinIO.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinIO.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.MinIO.Bucket, err)
		}
	}

	return client, nil
}
