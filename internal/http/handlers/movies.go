package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"moviegen/internal/domain"
	"moviegen/internal/middleware"
	"moviegen/internal/msgcat"
	"moviegen/internal/pipeline"
)

type createMovieRequest struct {
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime"`
	X1         float64    `json:"x1"`
	Y1         float64    `json:"y1"`
	X2         float64    `json:"x2"`
	Y2         float64    `json:"y2"`
	ImageScale float64    `json:"imageScale"`
	Layers     []string   `json:"layers"`
	Format     string     `json:"format"`
	NumFrames  *int       `json:"numFrames"`
	FrameRate  *float64   `json:"frameRate"`
	Quality    int        `json:"quality"`
	Watermark  bool       `json:"watermark"`
}

type createMovieResponse struct {
	ID         string `json:"id"`
	Token      string `json:"token"`
	ETASeconds int    `json:"eta"`
}

type movieStatusResponse struct {
	Status       domain.MovieStatus `json:"status"`
	Progress     int                `json:"progress"`
	ETASeconds   int                `json:"eta,omitempty"`
	FrameRate    float64            `json:"frameRate,omitempty"`
	NumFrames    int                `json:"numFrames,omitempty"`
	StartDate    *time.Time         `json:"startDate,omitempty"`
	EndDate      *time.Time         `json:"endDate,omitempty"`
	Width        int                `json:"width,omitempty"`
	Height       int                `json:"height,omitempty"`
	ThumbnailURL string             `json:"thumbnailUrl,omitempty"`
	ArtifactURL  string             `json:"artifactUrl,omitempty"`
	Error        string             `json:"error,omitempty"`
}

type regenerateMovieRequest struct {
	Force bool `json:"force"`
}

type regenerateMovieResponse struct {
	Token      string `json:"token"`
	ETASeconds int    `json:"eta"`
}

// CreateMovie accepts a movie request, validates it, plans the frame set
// once so obviously empty windows fail before a job is ever queued, and
// enqueues the job for the worker.
func (a *App) CreateMovie(w http.ResponseWriter, r *http.Request) {
	var req createMovieRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}

	if msg := a.validateCreate(&req); msg != "" {
		a.error(w, http.StatusBadRequest, "validation", msg)
		return
	}

	// The job ID keys the cache directory, so it is allocated before
	// planning: a window with no data still gets a poisoned directory,
	// and any holder of the ID sees ERROR instead of hanging.
	jobID := uuid.NewString()

	window := a.Windows.Resolve(req.StartTime, req.EndTime)
	plan, err := a.Planner.Plan(r.Context(), window, req.Layers, req.NumFrames, req.FrameRate)
	if err != nil {
		kind := domain.ErrorKind(err)
		a.Logger.Warn().Err(err).Strs("layers", req.Layers).Msg("create: planning rejected request")
		status := http.StatusBadRequest
		if kind == "internal" {
			status = http.StatusInternalServerError
		}
		if kind == "insufficient_data" {
			if markErr := a.Store.MarkInvalid(jobID); markErr != nil {
				a.Logger.Warn().Err(markErr).Str("job_id", jobID).Msg("create: mark cache invalid")
			}
		}
		a.errorKind(w, r, status, kind)
		return
	}

	job := &domain.MovieJob{
		ID:           jobID,
		Token:        uuid.NewString(),
		Layers:       append([]string(nil), req.Layers...),
		Region:       domain.RegionOfInterest{X1: req.X1, Y1: req.Y1, X2: req.X2, Y2: req.Y2},
		ImageScale:   req.ImageScale,
		Format:       strings.ToLower(req.Format),
		Quality:      req.Quality,
		Watermark:    req.Watermark,
		StartTime:    window.Start,
		EndTime:      window.End,
		ReqNumFrames: req.NumFrames,
		ReqFrameRate: req.FrameRate,
		Status:       domain.StatusQueued,
	}

	if err := a.Repo.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Msg("create: persist job")
		a.errorKind(w, r, http.StatusInternalServerError, "internal")
		return
	}

	a.Logger.Info().
		Str("job_id", job.ID).
		Int("planned_frames", plan.NumFrames).
		Strs("layers", job.Layers).
		Msg("create: movie queued")

	a.json(w, http.StatusAccepted, createMovieResponse{
		ID:         job.ID,
		Token:      job.Token,
		ETASeconds: int(pipeline.EstimateETA(plan.NumFrames).Seconds()),
	})
}

func (a *App) validateCreate(req *createMovieRequest) string {
	if req.StartTime.IsZero() {
		return "startTime is required"
	}
	if req.EndTime != nil && !req.EndTime.After(req.StartTime) {
		return "endTime must be after startTime"
	}
	if len(req.Layers) == 0 {
		return "at least one layer is required"
	}
	if len(req.Layers) > domain.MaxLayers {
		return "at most 3 layers are supported"
	}
	for _, l := range req.Layers {
		if strings.TrimSpace(l) == "" {
			return "layer names must be non-empty"
		}
	}
	region := domain.RegionOfInterest{X1: req.X1, Y1: req.Y1, X2: req.X2, Y2: req.Y2}
	if region.Width() < a.MinRegionArcsec || region.Height() < a.MinRegionArcsec {
		return "region of interest is too small"
	}
	if req.ImageScale <= 0 {
		return "imageScale must be positive"
	}
	switch strings.ToLower(req.Format) {
	case "", "mp4", "webm":
	default:
		return "format must be mp4 or webm"
	}
	if req.NumFrames != nil && *req.NumFrames <= 0 {
		return "numFrames must be positive"
	}
	if req.FrameRate != nil && *req.FrameRate <= 0 {
		return "frameRate must be positive"
	}
	return ""
}

// MovieStatus reports the state of a job. The caller must present the
// token issued at creation (or by the latest regenerate); an older token
// is rejected so superseded pollers stop cleanly.
func (a *App) MovieStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	// A poisoned cache marks the whole job invalid; short-circuit before
	// touching the database.
	if a.Store.IsInvalid(jobID) {
		locale := middleware.LocaleFromContext(r.Context())
		a.json(w, http.StatusOK, movieStatusResponse{
			Status: domain.StatusError,
			Error:  msgcat.Message(locale, "internal"),
		})
		return
	}

	job, err := a.Repo.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.errorKind(w, r, http.StatusNotFound, "not_found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("status: load job")
		a.errorKind(w, r, http.StatusInternalServerError, "internal")
		return
	}

	if token := r.URL.Query().Get("token"); token != job.Token {
		a.errorKind(w, r, http.StatusUnauthorized, "stale_token")
		return
	}

	a.json(w, http.StatusOK, a.statusBody(r, job))
}

func (a *App) statusBody(r *http.Request, job *domain.MovieJob) movieStatusResponse {
	resp := movieStatusResponse{
		Status:   job.Status,
		Progress: job.Progress,
	}

	switch job.Status {
	case domain.StatusCompleted:
		resp.FrameRate = job.FrameRate
		resp.NumFrames = job.NumFrames
		resp.StartDate = &job.StartTime
		resp.EndDate = &job.EndTime
		resp.Width = job.Width
		resp.Height = job.Height
		if job.ThumbnailKey != "" {
			resp.ThumbnailURL = a.StorageBaseURL + "/" + job.ThumbnailKey
		}
		if job.StreamKey != "" {
			resp.ArtifactURL = a.StorageBaseURL + "/" + job.StreamKey
		}
	case domain.StatusError:
		locale := middleware.LocaleFromContext(r.Context())
		kind := job.ErrorKind
		if kind == "" {
			kind = "internal"
		}
		resp.Error = msgcat.Message(locale, kind)
	default:
		resp.ETASeconds = remainingETA(job, time.Now())
	}
	return resp
}

// remainingETA extrapolates from observed progress; a job that has not
// started reporting yet falls back to the initial estimate.
func remainingETA(job *domain.MovieJob, now time.Time) int {
	if job.Progress <= 0 {
		return int(pipeline.EstimateETA(0).Seconds())
	}
	elapsed := now.Sub(job.CreatedAt).Seconds()
	remaining := elapsed * float64(100-job.Progress) / float64(job.Progress)
	if remaining < 1 {
		remaining = 1
	}
	return int(remaining)
}

// RegenerateMovie resets a terminal job to QUEUED under a fresh token.
// Without force, only failed jobs or completed movies older than the
// staleness threshold are accepted.
func (a *App) RegenerateMovie(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	var req regenerateMovieRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	job, err := a.Repo.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.errorKind(w, r, http.StatusNotFound, "not_found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("regenerate: load job")
		a.errorKind(w, r, http.StatusInternalServerError, "internal")
		return
	}

	if !job.Status.Terminal() {
		a.error(w, http.StatusConflict, "conflict", "movie is still being generated")
		return
	}
	if !req.Force && job.Status == domain.StatusCompleted && time.Since(job.UpdatedAt) < a.Staleness {
		a.error(w, http.StatusConflict, "conflict", "movie is up to date; pass force to regenerate anyway")
		return
	}

	if err := a.Store.ClearInvalid(jobID); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("regenerate: clear invalid marker")
	}

	token, err := a.Repo.Requeue(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusConflict, "conflict", "movie is still being generated")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("regenerate: requeue")
		a.errorKind(w, r, http.StatusInternalServerError, "internal")
		return
	}

	a.Logger.Info().Str("job_id", jobID).Msg("regenerate: movie requeued")

	frames := job.NumFrames
	if frames == 0 && job.ReqNumFrames != nil {
		frames = *job.ReqNumFrames
	}
	a.json(w, http.StatusOK, regenerateMovieResponse{
		Token:      token,
		ETASeconds: int(pipeline.EstimateETA(frames).Seconds()),
	})
}
