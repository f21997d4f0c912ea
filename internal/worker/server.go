package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/config"
	"github.com/mlyard/mlyard/internal/service"
	"github.com/mlyard/mlyard/internal/storage"
	"github.com/mlyard/mlyard/internal/tasks"
)

// Server is the worker server
type Server struct {
	logger    *zap.Logger
	config    *config.Config
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	client    *asynq.Client
}

// Dependencies holds everything the workers need
type Dependencies struct {
	RunService      *service.RunService
	EndpointService *service.EndpointService
	ComputeRepo     service.ComputeRepository
	MetricRepo      service.MetricRepository
	RunRepo         service.RunRepository
	WorkspaceRepo   WorkspaceLister
	RunSweeper      RunSweeper
	ArtifactStore   *storage.ArtifactStore
	HealthProber    HealthProber
}

// NewServer creates a new worker server
func NewServer(
	logger *zap.Logger,
	cfg *config.Config,
	deps *Dependencies,
) (*Server, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				tasks.QueueDefault:  3,
				tasks.QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing failed",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	trainingWorker := NewTrainingWorker(
		logger,
		cfg,
		deps.ComputeRepo,
		deps.RunService,
		deps.ArtifactStore,
	)

	deployWorker := NewDeployWorker(
		logger,
		deps.EndpointService,
		deps.HealthProber,
	)

	exportWorker := NewExportWorker(
		logger,
		cfg.Export,
		deps.RunRepo,
		deps.MetricRepo,
	)

	cleanupWorker := NewCleanupWorker(
		logger,
		cfg.Retention,
		deps.WorkspaceRepo,
		deps.RunSweeper,
		deps.MetricRepo,
		deps.ArtifactStore,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeTrainingRun, trainingWorker.ProcessTask)
	if cfg.Worker.DeployEnabled {
		mux.HandleFunc(tasks.TypeEndpointDeploy, deployWorker.ProcessDeployTask)
		mux.HandleFunc(tasks.TypeEndpointTeardown, deployWorker.ProcessTeardownTask)
	}
	mux.HandleFunc(tasks.TypeMetricExport, exportWorker.ProcessTask)
	mux.HandleFunc(tasks.TypeRetentionCleanup, cleanupWorker.ProcessTask)

	scheduler := asynq.NewScheduler(redisOpt, nil)
	client := asynq.NewClient(redisOpt)

	return &Server{
		logger:    logger,
		config:    cfg,
		server:    server,
		mux:       mux,
		scheduler: scheduler,
		client:    client,
	}, nil
}

// Start starts the worker server
func (s *Server) Start() error {
	if err := s.registerScheduledTasks(); err != nil {
		return fmt.Errorf("failed to register scheduled tasks: %w", err)
	}

	go func() {
		if err := s.scheduler.Run(); err != nil {
			s.logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	s.logger.Info("starting worker server",
		zap.Int("concurrency", s.config.Worker.Concurrency),
	)

	return s.server.Run(s.mux)
}

// Stop stops the worker server
func (s *Server) Stop() {
	s.server.Shutdown()
	s.scheduler.Shutdown()
	s.client.Close()
}

// Client returns the asynq client for enqueuing tasks
func (s *Server) Client() *asynq.Client {
	return s.client
}

// registerScheduledTasks registers periodic tasks with the scheduler
func (s *Server) registerScheduledTasks() error {
	if !s.config.Retention.Enabled {
		return nil
	}

	// Nightly retention sweep at 3 AM UTC
	task, err := tasks.NewRetentionCleanupTask(&tasks.RetentionCleanupPayload{})
	if err != nil {
		return err
	}
	if _, err := s.scheduler.Register("0 3 * * *", task, asynq.Queue(tasks.QueueLow)); err != nil {
		return fmt.Errorf("failed to register retention cleanup task: %w", err)
	}

	return nil
}

// asynqLogger adapts zap.Logger to asynq.Logger
type asynqLogger struct {
	logger *zap.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}
