// Package pipeline runs one movie job end to end: plan, assemble, encode.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"moviegen/internal/assembler"
	"moviegen/internal/domain"
	"moviegen/internal/encoder"
	"moviegen/internal/planner"
	"moviegen/internal/storage"
)

// Progress checkpoints. Assembly owns the span up to assembleDone; the two
// encodes are opaque to us so they jump straight to encodeDone.
const (
	assembleDone = 80
	encodeDone   = 95
)

// perFrameEstimate feeds the ETA returned to clients at creation time.
const perFrameEstimate = 500 * time.Millisecond

// EstimateETA predicts how long a job with the given planned frame count
// takes, including a flat encode allowance.
func EstimateETA(numFrames int) time.Duration {
	return time.Duration(numFrames)*perFrameEstimate + 10*time.Second
}

// Pipeline executes claimed jobs. Stages run sequentially per job because
// the external encoder blocks; concurrency comes from running multiple
// pipeline instances over disjoint jobs.
type Pipeline struct {
	repo    domain.MovieRepository
	store   *storage.CacheStore
	planner *planner.FramePlanner
	asm     *assembler.Assembler
	enc     *encoder.Encoder
	logger  zerolog.Logger

	MaxWidth  int
	MaxHeight int
}

// New wires a pipeline.
func New(repo domain.MovieRepository, store *storage.CacheStore, pl *planner.FramePlanner, asm *assembler.Assembler, enc *encoder.Encoder, maxWidth, maxHeight int, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		repo:      repo,
		store:     store,
		planner:   pl,
		asm:       asm,
		enc:       enc,
		logger:    logger,
		MaxWidth:  maxWidth,
		MaxHeight: maxHeight,
	}
}

// Run processes one job that has already been claimed (status PROCESSING).
// On failure the job is marked ERROR and the INVALID marker is written so
// status queries short-circuit from then on.
func (p *Pipeline) Run(ctx context.Context, job *domain.MovieJob) error {
	if err := p.run(ctx, job); err != nil {
		kind := domain.ErrorKind(err)
		p.logger.Error().Err(err).Str("job_id", job.ID).Str("kind", kind).Msg("pipeline: job failed")
		if failErr := p.repo.Fail(ctx, job.ID, kind, err.Error()); failErr != nil {
			p.logger.Error().Err(failErr).Str("job_id", job.ID).Msg("pipeline: persist failure state")
		}
		if markErr := p.store.MarkInvalid(job.ID); markErr != nil {
			p.logger.Error().Err(markErr).Str("job_id", job.ID).Msg("pipeline: write invalid marker")
		}
		return err
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, job *domain.MovieJob) error {
	// A regenerated job reuses its cache directory; stale failure state
	// must not shadow the new run.
	if err := p.store.ClearInvalid(job.ID); err != nil {
		return err
	}
	jobDir, err := p.store.JobDir(job.ID)
	if err != nil {
		return err
	}
	framesDir, err := p.store.FramesDir(job.ID)
	if err != nil {
		return err
	}

	window := domain.TimeWindow{Start: job.StartTime, End: job.EndTime}
	plan, err := p.planner.Plan(ctx, window, job.Layers, job.ReqNumFrames, job.ReqFrameRate)
	if err != nil {
		return err
	}

	width, height, scale := encoder.ClampDimensions(job.Region, job.ImageScale, p.MaxWidth, p.MaxHeight)

	lastReported := 0
	res, err := p.asm.Assemble(ctx, assembler.Input{
		JobID:      job.ID,
		Plan:       plan,
		Window:     window,
		Layers:     job.Layers,
		Region:     job.Region,
		ImageScale: scale,
		Width:      width,
		Height:     height,
		Watermark:  job.Watermark,
		FramesDir:  framesDir,
		OnProgress: func(done, total int) {
			pct := done * assembleDone / total
			if pct > lastReported {
				lastReported = pct
				if upErr := p.repo.UpdateProgress(ctx, job.ID, pct); upErr != nil {
					p.logger.Warn().Err(upErr).Str("job_id", job.ID).Msg("pipeline: progress update")
				}
			}
		},
	})
	if err != nil {
		return err
	}

	out, err := p.enc.Encode(ctx, encoder.Input{
		JobID:     job.ID,
		Frames:    res.Frames,
		FramesDir: framesDir,
		OutputDir: jobDir,
		Width:     width,
		Height:    height,
		FrameRate: plan.FrameRate,
		Quality:   job.Quality,
		Format:    job.Format,
	})
	if err != nil {
		return err
	}
	if upErr := p.repo.UpdateProgress(ctx, job.ID, encodeDone); upErr != nil {
		p.logger.Warn().Err(upErr).Str("job_id", job.ID).Msg("pipeline: progress update")
	}

	job.FrameRate = out.FrameRate
	job.NumFrames = res.NumFrames
	job.Width = out.Width
	job.Height = out.Height
	job.ImageScale = scale
	job.StreamKey = p.store.Key(out.StreamPath)
	job.HQKey = p.store.Key(out.HQPath)
	job.ThumbnailKey = p.store.Key(out.ThumbnailPath)

	if err := p.repo.Complete(ctx, job); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Int("frames", res.NumFrames).
		Float64("fps", out.FrameRate).
		Int("width", out.Width).
		Int("height", out.Height).
		Msg("pipeline: movie ready")
	return nil
}
