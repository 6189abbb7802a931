package domain

import "time"

// MovieStatus enumerates the job lifecycle states. The numeric values are
// part of the status API contract and must not be reordered.
type MovieStatus int

const (
	StatusQueued     MovieStatus = 0
	StatusProcessing MovieStatus = 1
	StatusCompleted  MovieStatus = 2
	StatusError      MovieStatus = 3
)

// String returns the wire name of the status.
func (s MovieStatus) String() string {
	switch s {
	case StatusQueued:
		return "QUEUED"
	case StatusProcessing:
		return "PROCESSING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status admits no further pipeline transitions
// short of an explicit regenerate.
func (s MovieStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// MaxLayers caps how many data layers a single movie may composite.
// Frame-accurate sync across more layers is not guaranteed by the design.
const MaxLayers = 3

// RegionOfInterest is a bounding box in arcseconds.
type RegionOfInterest struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Width returns the region width in arcseconds.
func (r RegionOfInterest) Width() float64 { return r.X2 - r.X1 }

// Height returns the region height in arcseconds.
func (r RegionOfInterest) Height() float64 { return r.Y2 - r.Y1 }

// MovieRequest is the fully parsed user request for a new movie.
type MovieRequest struct {
	StartTime  time.Time
	EndTime    *time.Time
	Region     RegionOfInterest
	ImageScale float64
	Layers     []string
	Format     string
	NumFrames  *int
	FrameRate  *float64
	Quality    int
	Watermark  bool
}

// TimeWindow is the resolved absolute [Start, End) observation window.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Duration returns End - Start.
func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// FramePlan is the planner's advisory output. The assembler may realize
// fewer frames after deduplication; the assembled count is authoritative.
type FramePlan struct {
	NumFrames int
	Cadence   time.Duration
	FrameRate float64
}

// ImageRecord identifies one archived source image for a layer.
type ImageRecord struct {
	ID         int64
	LayerID    string
	ObservedAt time.Time
	FilePath   string
}

// FrameTimestamp pairs an instant with the nearest image chosen per layer.
type FrameTimestamp struct {
	Instant time.Time
	Images  map[string]ImageRecord
}

// Equivalent reports whether two frame timestamps would render identically,
// i.e. every layer resolved to the same underlying image.
func (f FrameTimestamp) Equivalent(other FrameTimestamp) bool {
	if len(f.Images) != len(other.Images) {
		return false
	}
	for layer, img := range f.Images {
		o, ok := other.Images[layer]
		if !ok || o.ID != img.ID {
			return false
		}
	}
	return true
}

// MovieJob is one tracked unit of pipeline work.
type MovieJob struct {
	ID         string
	Token      string
	Layers     []string
	Region     RegionOfInterest
	ImageScale float64
	Format     string
	Quality    int
	Watermark  bool
	StartTime  time.Time
	EndTime    time.Time

	// User overrides carried so the worker re-plans with the original
	// request semantics, including after a regenerate.
	ReqNumFrames *int
	ReqFrameRate *float64

	Status       MovieStatus
	Progress     int
	ErrorKind    string
	ErrorMessage string

	// Populated once the job completes.
	FrameRate    float64
	NumFrames    int
	Width        int
	Height       int
	StreamKey    string
	HQKey        string
	ThumbnailKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}
