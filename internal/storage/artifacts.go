package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	"github.com/mlyard/mlyard/internal/pkg/logger"
)

// ArtifactStore stores run artifacts in an S3-compatible object store.
// Objects live under runs/<run_id>/artifacts/<path> within one bucket.
type ArtifactStore struct {
	client *minio.Client
	bucket string
}

// NewArtifactStore creates a new artifact store
func NewArtifactStore(client *minio.Client, bucket string) *ArtifactStore {
	return &ArtifactStore{client: client, bucket: bucket}
}

// RunRoot returns the object-store prefix for a run's artifacts
func RunRoot(runID string) string {
	return fmt.Sprintf("runs/%s/artifacts", runID)
}

func (s *ArtifactStore) objectKey(runID, artifactPath string) string {
	return path.Join(RunRoot(runID), artifactPath)
}

// Put uploads an artifact. The size may be -1 when unknown; minio will
// stream the upload in parts.
func (s *ArtifactStore) Put(ctx context.Context, runID, artifactPath string, reader io.Reader, size int64, contentType string) (*domain.ArtifactInfo, error) {
	if err := validateArtifactPath(artifactPath); err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := s.objectKey(runID, artifactPath)
	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload artifact: %w", err)
	}

	logger.Debug("artifact uploaded",
		zap.String("run_id", runID),
		zap.String("path", artifactPath),
		zap.Int64("size", info.Size),
	)

	return &domain.ArtifactInfo{
		Path:         artifactPath,
		SizeBytes:    info.Size,
		ContentType:  contentType,
		LastModified: time.Now(),
	}, nil
}

// Get opens an artifact for reading. The caller must close the reader.
func (s *ArtifactStore) Get(ctx context.Context, runID, artifactPath string) (io.ReadCloser, *domain.ArtifactInfo, error) {
	if err := validateArtifactPath(artifactPath); err != nil {
		return nil, nil, err
	}

	key := s.objectKey(runID, artifactPath)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return nil, nil, ErrArtifactNotFound
		}
		return nil, nil, fmt.Errorf("failed to stat artifact: %w", err)
	}

	info := &domain.ArtifactInfo{
		Path:         artifactPath,
		SizeBytes:    stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}

	return obj, info, nil
}

// List lists one directory level of a run's artifacts. Directories show
// up as entries with IsDir set.
func (s *ArtifactStore) List(ctx context.Context, runID, prefix string) ([]domain.ArtifactInfo, error) {
	root := RunRoot(runID) + "/"
	listPrefix := root
	if prefix != "" {
		if err := validateArtifactPath(prefix); err != nil {
			return nil, err
		}
		listPrefix = root + strings.TrimSuffix(prefix, "/") + "/"
	}

	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix: listPrefix,
	})

	var artifacts []domain.ArtifactInfo
	for obj := range objects {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list artifacts: %w", obj.Err)
		}

		rel := strings.TrimPrefix(obj.Key, root)
		if strings.HasSuffix(obj.Key, "/") {
			artifacts = append(artifacts, domain.ArtifactInfo{
				Path:  strings.TrimSuffix(rel, "/"),
				IsDir: true,
			})
			continue
		}

		artifacts = append(artifacts, domain.ArtifactInfo{
			Path:         rel,
			SizeBytes:    obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}

	return artifacts, nil
}

// Presign returns a time-limited download URL for an artifact
func (s *ArtifactStore) Presign(ctx context.Context, runID, artifactPath string, expiry time.Duration) (string, error) {
	if err := validateArtifactPath(artifactPath); err != nil {
		return "", err
	}

	key := s.objectKey(runID, artifactPath)
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign artifact url: %w", err)
	}

	return u.String(), nil
}

// DeleteRun removes every artifact stored for a run
func (s *ArtifactStore) DeleteRun(ctx context.Context, runID string) error {
	prefix := RunRoot(runID) + "/"

	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("failed to list artifacts for deletion: %w", obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to delete artifact %s: %w", obj.Key, err)
		}
	}

	logger.Debug("run artifacts deleted", zap.String("run_id", runID))

	return nil
}

// GetSnapshot opens an uploaded source snapshot by its raw object key.
// Snapshots are stored outside the per-run artifact prefix.
func (s *ArtifactStore) GetSnapshot(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return obj, nil
}

// PutSnapshot uploads a source snapshot and returns its object key
func (s *ArtifactStore) PutSnapshot(ctx context.Context, jobID string, reader io.Reader, size int64) (string, error) {
	key := fmt.Sprintf("snapshots/%s.tar.gz", jobID)

	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}

	return key, nil
}
