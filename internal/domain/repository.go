package domain

import (
	"context"
	"time"
)

// MovieRepository defines persistence for movie jobs.
type MovieRepository interface {
	Create(ctx context.Context, job *MovieJob) error
	GetByID(ctx context.Context, jobID string) (*MovieJob, error)
	// Claim atomically marks the oldest QUEUED job PROCESSING and returns it.
	// ErrNotFound is returned when no job is queued.
	Claim(ctx context.Context) (*MovieJob, error)
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	Complete(ctx context.Context, job *MovieJob) error
	Fail(ctx context.Context, jobID, kind, message string) error
	// Requeue resets a terminal job to QUEUED under a fresh token and
	// returns the new token.
	Requeue(ctx context.Context, jobID string) (string, error)
}

// ClosestImageLookup resolves archived source images near an instant.
type ClosestImageLookup interface {
	Nearest(ctx context.Context, layerID string, instant time.Time) (*ImageRecord, error)
	Count(ctx context.Context, layerID string, window TimeWindow) (int, error)
}

// FrameSpec describes one composite frame to render.
type FrameSpec struct {
	JobID      string
	Index      int
	Instant    time.Time
	Images     map[string]ImageRecord
	Region     RegionOfInterest
	ImageScale float64
	Width      int
	Height     int
	Watermark  bool
	OutputDir  string
}

// FrameBuilder renders a single composite raster frame. Implementations must
// produce deterministic, equally-sized output for every frame of a job.
type FrameBuilder interface {
	RenderFrame(ctx context.Context, spec FrameSpec) (string, error)
}
