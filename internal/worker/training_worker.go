package worker

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/config"
	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/pkg/metrics"
	"github.com/mlyard/mlyard/internal/service"
	"github.com/mlyard/mlyard/internal/tasks"
)

// killPollInterval is how often a running job checks whether its run was
// terminated through the API
const killPollInterval = 5 * time.Second

// consoleLogPath is where the captured process output lands in the run's
// artifact tree
const consoleLogPath = "logs/console.log"

// RunLifecycle is the slice of the run service the training worker
// drives
type RunLifecycle interface {
	Get(ctx context.Context, runID string) (*domain.Run, error)
	UpdateStatus(ctx context.Context, runID string, next domain.RunStatus) (*domain.Run, error)
}

// ArtifactSink stores process output and serves source snapshots
type ArtifactSink interface {
	Put(ctx context.Context, runID, path string, reader io.Reader, size int64, contentType string) (*domain.ArtifactInfo, error)
	GetSnapshot(ctx context.Context, key string) (io.ReadCloser, error)
}

// TrainingWorker executes submitted training jobs as local processes.
// The job's entry point runs with MLYARD_RUN_ID and MLYARD_TRACKING_URI
// in its environment so the training script logs back to the server.
type TrainingWorker struct {
	logger    *zap.Logger
	cfg       *config.Config
	repo      service.ComputeRepository
	runs      RunLifecycle
	artifacts ArtifactSink
	// slots caps how many training processes run on this host at once,
	// independent of per-target capacity
	slots chan struct{}
}

// NewTrainingWorker creates a new training worker
func NewTrainingWorker(
	logger *zap.Logger,
	cfg *config.Config,
	repo service.ComputeRepository,
	runs RunLifecycle,
	artifacts ArtifactSink,
) *TrainingWorker {
	slots := cfg.Worker.TrainingSlots
	if slots <= 0 {
		slots = 1
	}
	return &TrainingWorker{
		logger:    logger,
		cfg:       cfg,
		repo:      repo,
		runs:      runs,
		artifacts: artifacts,
		slots:     make(chan struct{}, slots),
	}
}

// ProcessTask runs one training job to completion
func (w *TrainingWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.TrainingRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal training payload: %v: %w", err, asynq.SkipRetry)
	}

	job, err := w.repo.GetJobByID(ctx, payload.JobID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			w.logger.Warn("training job vanished before execution",
				zap.String("job_id", payload.JobID.String()))
			return nil
		}
		return err
	}

	if job.Status != domain.JobStatusQueued {
		w.logger.Info("skipping job not in queued state",
			zap.String("job_id", job.ID.String()),
			zap.String("status", string(job.Status)))
		return nil
	}

	target, err := w.repo.GetTargetByID(ctx, job.TargetID)
	if err != nil {
		w.failJob(ctx, job, "compute target no longer exists")
		return nil
	}

	running, err := w.repo.CountRunningJobs(ctx, target.ID)
	if err != nil {
		return err
	}
	if running >= int64(target.MaxParallel) {
		// Back off and let asynq redeliver once a slot frees up
		return fmt.Errorf("compute target %q is at capacity (%d running)", target.Name, running)
	}

	select {
	case w.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.slots }()

	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.JobStatusRunning, ""); err != nil {
		return err
	}
	if _, err := w.runs.UpdateStatus(ctx, payload.RunID, domain.RunStatusRunning); err != nil && !apperrors.IsConflict(err) {
		w.logger.Warn("failed to mark run running",
			zap.String("run_id", payload.RunID),
			zap.Error(err))
	}

	w.logger.Info("starting training job",
		zap.String("job_id", job.ID.String()),
		zap.String("run_id", payload.RunID),
		zap.String("target", target.Name),
		zap.String("entry_point", job.EntryPoint))

	output, runErr := w.execute(ctx, job, payload.RunID)

	w.storeConsoleLog(ctx, payload.RunID, output)
	w.finishJob(ctx, job, payload.RunID, runErr)

	return nil
}

// execute runs the job's entry point and returns its combined output
func (w *TrainingWorker) execute(ctx context.Context, job *domain.TrainingJob, runID string) ([]byte, error) {
	workDir, err := os.MkdirTemp("", "mlyard-job-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if job.SnapshotPath != "" {
		if err := w.restoreSnapshot(ctx, job.SnapshotPath, workDir); err != nil {
			return nil, fmt.Errorf("failed to restore snapshot: %w", err)
		}
	}

	timeout := time.Duration(job.TimeoutSec) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, job.EntryPoint, job.Arguments...)
	cmd.Dir = workDir
	cmd.Env = w.buildEnv(job, runID)

	// Training scripts fork freely; run the job in its own process
	// group so cancellation kills the whole tree, not just the entry
	// point. WaitDelay bounds the wait on output pipes held open by
	// any stragglers.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	// Watch for the run being killed through the API while the process
	// is alive
	watchDone := make(chan struct{})
	killed := false
	go func() {
		defer close(watchDone)
		ticker := time.NewTicker(killPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				run, err := w.runs.Get(context.Background(), runID)
				if err != nil {
					continue
				}
				if run.Status == domain.RunStatusKilled {
					killed = true
					cancel()
					return
				}
			}
		}
	}()

	execErr := cmd.Run()
	cancel()
	<-watchDone

	switch {
	case killed:
		return output.Bytes(), errRunKilled
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return output.Bytes(), fmt.Errorf("job timed out after %s", timeout)
	case execErr != nil:
		return output.Bytes(), fmt.Errorf("entry point failed: %w", execErr)
	}

	return output.Bytes(), nil
}

// errRunKilled signals that the run was terminated through the API
var errRunKilled = errors.New("run was killed")

// buildEnv assembles the environment for the training process
func (w *TrainingWorker) buildEnv(job *domain.TrainingJob, runID string) []string {
	env := os.Environ()
	env = append(env,
		"MLYARD_RUN_ID="+runID,
		"MLYARD_TRACKING_URI="+w.cfg.Server.BaseURL,
		"MLYARD_EXPERIMENT_ID="+job.ExperimentID.String(),
	)
	for k, v := range job.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// restoreSnapshot downloads and unpacks a source snapshot into dir
func (w *TrainingWorker) restoreSnapshot(ctx context.Context, key, dir string) error {
	reader, err := w.artifacts.GetSnapshot(ctx, key)
	if err != nil {
		return err
	}
	defer reader.Close()

	gz, err := gzip.NewReader(reader)
	if err != nil {
		return fmt.Errorf("snapshot is not gzipped: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read snapshot entry: %w", err)
		}

		name := filepath.Clean(hdr.Name)
		if name == ".." || strings.HasPrefix(name, "../") || filepath.IsAbs(name) {
			return fmt.Errorf("snapshot entry escapes work dir: %s", hdr.Name)
		}
		dest := filepath.Join(dir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
}

// storeConsoleLog uploads the process output as a run artifact
func (w *TrainingWorker) storeConsoleLog(ctx context.Context, runID string, output []byte) {
	if w.artifacts == nil || len(output) == 0 {
		return
	}

	_, err := w.artifacts.Put(ctx, runID, consoleLogPath, bytes.NewReader(output), int64(len(output)), "text/plain")
	if err != nil {
		w.logger.Warn("failed to store console log",
			zap.String("run_id", runID),
			zap.Error(err))
	}
}

// finishJob records the job's terminal state and settles the run
func (w *TrainingWorker) finishJob(ctx context.Context, job *domain.TrainingJob, runID string, runErr error) {
	var jobStatus domain.JobStatus
	var runStatus domain.RunStatus
	var jobMsg string

	switch {
	case runErr == nil:
		jobStatus = domain.JobStatusSucceeded
		runStatus = domain.RunStatusCompleted
	case errors.Is(runErr, errRunKilled):
		jobStatus = domain.JobStatusCanceled
		runStatus = domain.RunStatusKilled
		jobMsg = "run was killed"
	default:
		jobStatus = domain.JobStatusFailed
		runStatus = domain.RunStatusFailed
		jobMsg = runErr.Error()
	}

	if err := w.repo.UpdateJobStatus(ctx, job.ID, jobStatus, jobMsg); err != nil {
		w.logger.Error("failed to record job outcome",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}

	// The training script may already have moved the run to a terminal
	// state through the API; a conflict here is expected.
	if _, err := w.runs.UpdateStatus(ctx, runID, runStatus); err != nil && !apperrors.IsConflict(err) {
		w.logger.Warn("failed to settle run status",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	metrics.RecordJobFinished(string(jobStatus))

	w.logger.Info("training job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("run_id", runID),
		zap.String("status", string(jobStatus)))
}

// failJob marks a job failed before execution started
func (w *TrainingWorker) failJob(ctx context.Context, job *domain.TrainingJob, msg string) {
	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.JobStatusFailed, msg); err != nil {
		w.logger.Error("failed to mark job failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}
	metrics.RecordJobFinished(string(domain.JobStatusFailed))
}
