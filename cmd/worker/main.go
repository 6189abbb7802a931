package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moviegen/internal/adapter/repo"
	"moviegen/internal/assembler"
	"moviegen/internal/compositor"
	"moviegen/internal/domain"
	"moviegen/internal/encoder"
	"moviegen/internal/infra"
	"moviegen/internal/pipeline"
	"moviegen/internal/planner"
	"moviegen/internal/storage"
)

type movieWorker struct {
	ctx      context.Context
	repo     domain.MovieRepository
	pipeline *pipeline.Pipeline
	logger   infra.Logger
	poll     time.Duration
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	store, err := storage.NewCacheStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	profiles, err := encoder.LoadProfiles(cfg.EncoderProfilesPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to load encoder profiles")
	}

	movies := repo.NewMovieRepository(pool)
	images := repo.NewImageRepository(pool)

	pl := planner.NewFramePlanner(images, cfg.GlobalMaxFrames, float64(cfg.PlaybackSeconds), cfg.MaxFrameRate)
	asm := assembler.New(images, compositor.NewExecBuilder(cfg.CompositorBin, logger), logger)
	enc := encoder.New(&encoder.Process{Bin: cfg.FFmpegBin, Logger: logger}, profiles, cfg.MinVideoBytes, logger)
	pipe := pipeline.New(movies, store, pl, asm, enc, cfg.MaxWidth, cfg.MaxHeight, logger)

	worker := &movieWorker{
		ctx:      ctx,
		repo:     movies,
		pipeline: pipe,
		logger:   logger,
		poll:     cfg.WorkerPollEvery,
	}

	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func (w *movieWorker) Run() error {
	w.logger.Info().Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		default:
		}

		job, err := w.repo.Claim(w.ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				w.logger.Error().Err(err).Msg("worker: failed to claim job")
			}
			w.sleep()
			continue
		}

		w.handleJob(job)
	}
}

func (w *movieWorker) handleJob(job *domain.MovieJob) {
	w.logger.Info().
		Str("job_id", job.ID).
		Strs("layers", job.Layers).
		Msg("worker: picked job")

	start := time.Now()
	if err := w.pipeline.Run(w.ctx, job); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: job failed")
		return
	}
	w.logger.Info().
		Str("job_id", job.ID).
		Dur("elapsed", time.Since(start)).
		Int("frames", job.NumFrames).
		Msg("worker: movie ready")
}

func (w *movieWorker) sleep() {
	select {
	case <-w.ctx.Done():
	case <-time.After(w.poll):
	}
}
