package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moviegen/internal/domain"
)

// ImageRepositoryPG implements domain.ClosestImageLookup against the image
// archive tables.
type ImageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewImageRepository creates an archive lookup backed by PostgreSQL.
func NewImageRepository(pool *pgxpool.Pool) *ImageRepositoryPG {
	return &ImageRepositoryPG{pool: pool}
}

// Nearest returns the archived image closest to the instant for a layer.
// The archive is probed on both sides of the instant and the closer record
// wins; ties go to the earlier image.
func (r *ImageRepositoryPG) Nearest(ctx context.Context, layerID string, instant time.Time) (*domain.ImageRecord, error) {
	query := `
(SELECT id, layer_id, observed_at, file_path
   FROM images
  WHERE layer_id = $1 AND observed_at <= $2
  ORDER BY observed_at DESC
  LIMIT 1)
UNION ALL
(SELECT id, layer_id, observed_at, file_path
   FROM images
  WHERE layer_id = $1 AND observed_at > $2
  ORDER BY observed_at ASC
  LIMIT 1);
`
	rows, err := r.pool.Query(ctx, query, layerID, instant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var best *domain.ImageRecord
	for rows.Next() {
		var img domain.ImageRecord
		if err := rows.Scan(&img.ID, &img.LayerID, &img.ObservedAt, &img.FilePath); err != nil {
			return nil, err
		}
		if best == nil || distance(img.ObservedAt, instant) < distance(best.ObservedAt, instant) {
			candidate := img
			best = &candidate
		}
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best, nil
}

// Count returns how many archived images the layer has inside the window.
func (r *ImageRepositoryPG) Count(ctx context.Context, layerID string, window domain.TimeWindow) (int, error) {
	query := `
SELECT COUNT(*)
  FROM images
 WHERE layer_id = $1 AND observed_at >= $2 AND observed_at < $3;
`
	var n int
	if err := r.pool.QueryRow(ctx, query, layerID, window.Start, window.End).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
