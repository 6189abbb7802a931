package planner

import (
	"context"
	"fmt"
	"time"

	"moviegen/internal/domain"
)

// FramePlanner computes the frame count, cadence and output frame rate for a
// movie given per-layer data availability and user overrides.
type FramePlanner struct {
	lookup domain.ClosestImageLookup

	// GlobalMaxFrames is the system-wide frame budget shared across the
	// layers of one movie.
	GlobalMaxFrames int
	// PlaybackSeconds is the target on-screen duration used to derive the
	// frame rate from the frame count.
	PlaybackSeconds float64
	// MaxFrameRate caps the output rate regardless of what the playback
	// duration or the user would otherwise produce.
	MaxFrameRate float64
}

// NewFramePlanner wires a planner against an image lookup.
func NewFramePlanner(lookup domain.ClosestImageLookup, globalMaxFrames int, playbackSeconds, maxFrameRate float64) *FramePlanner {
	return &FramePlanner{
		lookup:          lookup,
		GlobalMaxFrames: globalMaxFrames,
		PlaybackSeconds: playbackSeconds,
		MaxFrameRate:    maxFrameRate,
	}
}

// Plan resolves availability over the window for every layer and computes
// the plan. Layers with very different native cadences are expected: the
// fastest-updating layer drives the count, so availability is the maximum
// across layers, not the minimum.
func (p *FramePlanner) Plan(ctx context.Context, window domain.TimeWindow, layers []string, reqFrames *int, reqRate *float64) (domain.FramePlan, error) {
	if len(layers) == 0 || len(layers) > domain.MaxLayers {
		return domain.FramePlan{}, fmt.Errorf("%w: movie must use between 1 and %d layers", domain.ErrValidation, domain.MaxLayers)
	}

	maxAvailable := 0
	for _, layer := range layers {
		n, err := p.lookup.Count(ctx, layer, window)
		if err != nil {
			return domain.FramePlan{}, fmt.Errorf("count images for %s: %w", layer, err)
		}
		if n > maxAvailable {
			maxAvailable = n
		}
	}

	numFrames := maxAvailable
	if reqFrames != nil && *reqFrames < numFrames {
		numFrames = *reqFrames
	}
	if budget := p.GlobalMaxFrames / len(layers); numFrames > budget {
		numFrames = budget
	}
	if numFrames <= 0 {
		return domain.FramePlan{}, domain.ErrInsufficientData
	}

	cadence := window.Duration() / time.Duration(numFrames)

	// One trailing duplicate frame is appended at assembly time, hence -1.
	rate := float64(numFrames-1) / p.PlaybackSeconds
	if reqRate != nil && *reqRate < rate {
		rate = *reqRate
	}
	if rate > p.MaxFrameRate {
		rate = p.MaxFrameRate
	}

	return domain.FramePlan{NumFrames: numFrames, Cadence: cadence, FrameRate: rate}, nil
}
