package storage

import (
	"strings"

	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
)

// ErrArtifactNotFound is returned when a requested artifact does not exist
var ErrArtifactNotFound = apperrors.NotFound("artifact")

// validateArtifactPath rejects paths that could escape the run's
// artifact prefix or collide with the prefix itself.
func validateArtifactPath(p string) error {
	if p == "" {
		return apperrors.BadRequest("artifact path is required")
	}
	if strings.HasPrefix(p, "/") {
		return apperrors.BadRequest("artifact path must be relative")
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".", "..":
			return apperrors.BadRequest("invalid artifact path")
		}
	}
	return nil
}
