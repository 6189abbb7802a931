// Package storage manages the on-disk cache layout for movie jobs. Each job
// owns one directory so concurrent pipelines never share frame files.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// invalidMarker is written into a job directory on failure. Its presence
// short-circuits later status queries to ERROR without re-checking encoder
// output.
const invalidMarker = "INVALID"

// CacheStore lays out per-job cache directories under a common root:
// <root>/movies/<job-id>/{frames/, movie-*.mp4, preview.png, INVALID}.
type CacheStore struct {
	basePath string
}

// NewCacheStore initializes a store rooted at basePath.
func NewCacheStore(basePath string) (*CacheStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &CacheStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *CacheStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// JobDir returns the cache directory for a job, creating it if needed.
func (s *CacheStore) JobDir(jobID string) (string, error) {
	if err := validateJobID(jobID); err != nil {
		return "", err
	}
	dir := filepath.Join(s.basePath, "movies", jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure job dir: %w", err)
	}
	return dir, nil
}

// FramesDir returns the transient frame directory for a job, creating it if
// needed. It is removed once encoding finishes.
func (s *CacheStore) FramesDir(jobID string) (string, error) {
	dir, err := s.JobDir(jobID)
	if err != nil {
		return "", err
	}
	frames := filepath.Join(dir, "frames")
	if err := os.MkdirAll(frames, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure frames dir: %w", err)
	}
	return frames, nil
}

// MarkInvalid writes the failure marker into the job directory.
func (s *CacheStore) MarkInvalid(jobID string) error {
	dir, err := s.JobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, invalidMarker), nil, 0o644); err != nil {
		return fmt.Errorf("storage: write invalid marker: %w", err)
	}
	return nil
}

// IsInvalid reports whether the failure marker exists for a job.
func (s *CacheStore) IsInvalid(jobID string) bool {
	if validateJobID(jobID) != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(s.basePath, "movies", jobID, invalidMarker))
	return err == nil
}

// ClearInvalid removes the failure marker, used when a job is regenerated.
func (s *CacheStore) ClearInvalid(jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.basePath, "movies", jobID, invalidMarker))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: clear invalid marker: %w", err)
	}
	return nil
}

// Key converts an absolute artifact path back into a key relative to the
// store root, suitable for building download URLs.
func (s *CacheStore) Key(path string) string {
	rel, err := filepath.Rel(s.basePath, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

// validateJobID rejects ids that could escape the storage root.
func validateJobID(jobID string) error {
	if jobID == "" {
		return errors.New("storage: job id is required")
	}
	if strings.ContainsAny(jobID, "/\\") || strings.Contains(jobID, "..") {
		return fmt.Errorf("storage: invalid job id %q", jobID)
	}
	return nil
}
