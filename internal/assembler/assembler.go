// Package assembler walks a frame plan, resolves the nearest source image
// per layer per instant, and renders the surviving frames.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"moviegen/internal/domain"
)

// Assembler turns a frame plan into rendered frame files.
type Assembler struct {
	lookup  domain.ClosestImageLookup
	builder domain.FrameBuilder
	logger  zerolog.Logger
}

// New wires an assembler.
func New(lookup domain.ClosestImageLookup, builder domain.FrameBuilder, logger zerolog.Logger) *Assembler {
	return &Assembler{lookup: lookup, builder: builder, logger: logger}
}

// Input carries everything the assembler needs for one job.
type Input struct {
	JobID      string
	Plan       domain.FramePlan
	Window     domain.TimeWindow
	Layers     []string
	Region     domain.RegionOfInterest
	ImageScale float64
	Width      int
	Height     int
	Watermark  bool
	FramesDir  string

	// OnProgress, when set, is called after each rendered frame with the
	// number of frames done and the planned total.
	OnProgress func(done, total int)
}

// Result is the assembled frame sequence. Frames holds the ordered file
// paths including the trailing duplicate; NumFrames is the realized count of
// distinct frames and is authoritative over the planned value.
type Result struct {
	Frames     []string
	Timestamps []domain.FrameTimestamp
	NumFrames  int
}

// Assemble steps through the planned cadence. Consecutive instants that
// resolve to an identical per-layer image set collapse into one frame, so
// coarse data under a fine cadence does not re-render or re-encode the same
// composition. The last rendered frame is appended once more so the final
// composition holds the screen as long as every other frame.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Result, error) {
	var (
		accepted []domain.FrameTimestamp
		frames   []string
	)

	instant := in.Window.Start
	for i := 0; i < in.Plan.NumFrames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ft, err := a.resolve(ctx, instant, in.Layers)
		if err != nil {
			return nil, err
		}
		instant = instant.Add(in.Plan.Cadence)
		if ft == nil {
			continue
		}
		if n := len(accepted); n > 0 && accepted[n-1].Equivalent(*ft) {
			continue
		}

		path, err := a.builder.RenderFrame(ctx, domain.FrameSpec{
			JobID:      in.JobID,
			Index:      len(accepted),
			Instant:    ft.Instant,
			Images:     ft.Images,
			Region:     in.Region,
			ImageScale: in.ImageScale,
			Width:      in.Width,
			Height:     in.Height,
			Watermark:  in.Watermark,
			OutputDir:  in.FramesDir,
		})
		if err != nil {
			return nil, fmt.Errorf("render frame %d: %w", len(accepted), err)
		}
		accepted = append(accepted, *ft)
		frames = append(frames, path)
		if in.OnProgress != nil {
			in.OnProgress(len(accepted), in.Plan.NumFrames)
		}
	}

	if len(frames) == 0 {
		return nil, domain.ErrInsufficientData
	}

	// Trailing duplicate so the final frame gets a full tick of screen time.
	frames = append(frames, frames[len(frames)-1])

	a.logger.Debug().
		Str("job_id", in.JobID).
		Int("planned", in.Plan.NumFrames).
		Int("assembled", len(accepted)).
		Msg("assembler: frame sequence ready")

	return &Result{Frames: frames, Timestamps: accepted, NumFrames: len(accepted)}, nil
}

// resolve builds the frame timestamp for one instant. An instant where no
// layer has any image at all yields nil rather than an error.
func (a *Assembler) resolve(ctx context.Context, instant time.Time, layers []string) (*domain.FrameTimestamp, error) {
	ft := domain.FrameTimestamp{Instant: instant, Images: make(map[string]domain.ImageRecord, len(layers))}
	for _, layer := range layers {
		img, err := a.lookup.Nearest(ctx, layer, instant)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("nearest image for %s: %w", layer, err)
		}
		ft.Images[layer] = *img
	}
	if len(ft.Images) == 0 {
		return nil, nil
	}
	return &ft, nil
}
