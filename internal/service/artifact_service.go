package service

import (
	"context"
	"io"
	"time"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/storage"
)

// ArtifactService handles artifact uploads and downloads for runs
type ArtifactService struct {
	store   *storage.ArtifactStore
	runRepo RunRepository
}

// NewArtifactService creates a new artifact service
func NewArtifactService(store *storage.ArtifactStore, runRepo RunRepository) *ArtifactService {
	return &ArtifactService{
		store:   store,
		runRepo: runRepo,
	}
}

// PresignExpiry is how long presigned download URLs stay valid
const PresignExpiry = 15 * time.Minute

// Upload stores an artifact under a run's artifact root. Uploads are
// rejected once the run has finished.
func (s *ArtifactService) Upload(ctx context.Context, runID, path string, reader io.Reader, size int64, contentType string) (*domain.ArtifactInfo, error) {
	run, err := s.runRepo.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return nil, apperrors.Conflict("cannot upload artifacts to a finished run")
	}

	return s.store.Put(ctx, runID, path, reader, size, contentType)
}

// Download opens an artifact for streaming. The caller must close the
// reader.
func (s *ArtifactService) Download(ctx context.Context, runID, path string) (io.ReadCloser, *domain.ArtifactInfo, error) {
	if _, err := s.runRepo.GetByID(ctx, runID); err != nil {
		return nil, nil, err
	}

	return s.store.Get(ctx, runID, path)
}

// List lists one directory level of a run's artifacts
func (s *ArtifactService) List(ctx context.Context, runID, prefix string) (*domain.ArtifactList, error) {
	if _, err := s.runRepo.GetByID(ctx, runID); err != nil {
		return nil, err
	}

	artifacts, err := s.store.List(ctx, runID, prefix)
	if err != nil {
		return nil, err
	}

	return &domain.ArtifactList{
		RunID:     runID,
		Prefix:    prefix,
		Artifacts: artifacts,
	}, nil
}

// PresignDownload returns a time-limited direct download URL
func (s *ArtifactService) PresignDownload(ctx context.Context, runID, path string) (string, error) {
	if _, err := s.runRepo.GetByID(ctx, runID); err != nil {
		return "", err
	}

	return s.store.Presign(ctx, runID, path, PresignExpiry)
}
