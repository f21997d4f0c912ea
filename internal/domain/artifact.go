package domain

import "time"

// ArtifactInfo describes a single stored artifact or a directory prefix
// under a run's artifact root.
type ArtifactInfo struct {
	Path         string    `json:"path"`  // path relative to the run's artifact root
	IsDir        bool      `json:"isDir"` // true for common prefixes
	SizeBytes    int64     `json:"sizeBytes,omitempty"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// ArtifactList is the listing of one directory level of a run's artifacts
type ArtifactList struct {
	RunID     string         `json:"runId"`
	Prefix    string         `json:"prefix,omitempty"`
	Artifacts []ArtifactInfo `json:"artifacts"`
}
