package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moviegen/internal/domain"
)

// MovieRepositoryPG implements domain.MovieRepository.
type MovieRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewMovieRepository creates a movie job repository backed by PostgreSQL.
func NewMovieRepository(pool *pgxpool.Pool) *MovieRepositoryPG {
	return &MovieRepositoryPG{pool: pool}
}

const movieColumns = `id, token, layers, x1, y1, x2, y2, image_scale, format, quality, watermark,
start_time, end_time, req_num_frames, req_frame_rate, status, progress, error_kind, error_message,
frame_rate, num_frames, width, height, stream_key, hq_key, thumbnail_key,
created_at, updated_at`

// Create inserts a new job record.
func (r *MovieRepositoryPG) Create(ctx context.Context, job *domain.MovieJob) error {
	query := `
INSERT INTO movie_jobs (id, token, layers, x1, y1, x2, y2, image_scale, format, quality, watermark, start_time, end_time, req_num_frames, req_frame_rate, status, progress)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Token,
		job.Layers,
		job.Region.X1,
		job.Region.Y1,
		job.Region.X2,
		job.Region.Y2,
		job.ImageScale,
		job.Format,
		job.Quality,
		job.Watermark,
		job.StartTime,
		job.EndTime,
		job.ReqNumFrames,
		job.ReqFrameRate,
		job.Status,
		job.Progress,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *MovieRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.MovieJob, error) {
	query := `SELECT ` + movieColumns + ` FROM movie_jobs WHERE id = $1;`
	return r.scanJob(r.pool.QueryRow(ctx, query, jobID))
}

// Claim atomically marks the oldest queued job as processing and returns it.
func (r *MovieRepositoryPG) Claim(ctx context.Context) (*domain.MovieJob, error) {
	query := `
WITH next_job AS (
    SELECT id
    FROM movie_jobs
    WHERE status = 0
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
),
updated AS (
    UPDATE movie_jobs
    SET status = 1, updated_at = NOW()
    WHERE id IN (SELECT id FROM next_job)
    RETURNING ` + movieColumns + `
)
SELECT * FROM updated;
`
	return r.scanJob(r.pool.QueryRow(ctx, query))
}

// UpdateProgress stores the latest completion percentage.
func (r *MovieRepositoryPG) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	query := `UPDATE movie_jobs SET progress = $2, updated_at = NOW() WHERE id = $1;`
	_, err := r.pool.Exec(ctx, query, jobID, progress)
	return err
}

// Complete records the finished artifacts and flips the job to COMPLETED.
func (r *MovieRepositoryPG) Complete(ctx context.Context, job *domain.MovieJob) error {
	query := `
UPDATE movie_jobs
SET status = $2, progress = 100, frame_rate = $3, num_frames = $4,
    width = $5, height = $6, image_scale = $7,
    stream_key = $8, hq_key = $9, thumbnail_key = $10,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		domain.StatusCompleted,
		job.FrameRate,
		job.NumFrames,
		job.Width,
		job.Height,
		job.ImageScale,
		job.StreamKey,
		job.HQKey,
		job.ThumbnailKey,
	)
	return err
}

// Fail flips the job to ERROR with its category and message.
func (r *MovieRepositoryPG) Fail(ctx context.Context, jobID, kind, message string) error {
	query := `
UPDATE movie_jobs
SET status = $2, error_kind = $3, error_message = $4, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID, domain.StatusError, kind, message)
	return err
}

// Requeue resets a terminal job to QUEUED under a fresh token. The old token
// stops matching the job from this point on.
func (r *MovieRepositoryPG) Requeue(ctx context.Context, jobID string) (string, error) {
	token := uuid.NewString()
	query := `
UPDATE movie_jobs
SET status = 0, progress = 0, token = $2,
    error_kind = '', error_message = '',
    frame_rate = 0, num_frames = 0, width = 0, height = 0,
    stream_key = '', hq_key = '', thumbnail_key = '',
    updated_at = NOW()
WHERE id = $1 AND status IN ($3, $4);
`
	tag, err := r.pool.Exec(ctx, query, jobID, token, domain.StatusCompleted, domain.StatusError)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", domain.ErrNotFound
	}
	return token, nil
}

func (r *MovieRepositoryPG) scanJob(row pgx.Row) (*domain.MovieJob, error) {
	var job domain.MovieJob
	if err := row.Scan(
		&job.ID,
		&job.Token,
		&job.Layers,
		&job.Region.X1,
		&job.Region.Y1,
		&job.Region.X2,
		&job.Region.Y2,
		&job.ImageScale,
		&job.Format,
		&job.Quality,
		&job.Watermark,
		&job.StartTime,
		&job.EndTime,
		&job.ReqNumFrames,
		&job.ReqFrameRate,
		&job.Status,
		&job.Progress,
		&job.ErrorKind,
		&job.ErrorMessage,
		&job.FrameRate,
		&job.NumFrames,
		&job.Width,
		&job.Height,
		&job.StreamKey,
		&job.HQKey,
		&job.ThumbnailKey,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}
