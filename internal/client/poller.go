package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"moviegen/internal/domain"
)

// Listener receives terminal notifications and progress updates for tracked
// jobs.
type Listener interface {
	MovieReady(entry HistoryEntry)
	MovieFailed(jobID, message string)
	MovieProgress(jobID string, progress int)
}

// Poller schedules status queries for tracked jobs. Each job owns at most
// one outstanding timer; the next poll is scheduled only after the previous
// one resolves, so polls for one job never overlap. Removing a job from the
// tracked set cancels its loop at the next tick.
type Poller struct {
	api      StatusAPI
	history  *History
	listener Listener
	logger   zerolog.Logger

	// MinPollInterval bounds how soon the first poll may fire even when
	// the server's ETA is smaller.
	MinPollInterval time.Duration
	// FallbackInterval spaces the polls after the first one.
	FallbackInterval time.Duration
	// Watchdog is the client-enforced maximum job age, measured from the
	// locally recorded request time. A breach marks the job failed
	// locally without waiting for server confirmation: data that has not
	// materialized within the window is treated as permanently
	// unavailable.
	Watchdog time.Duration

	now func() time.Time

	mu      sync.Mutex
	tracked map[string]*trackedJob
	closed  bool
	wg      sync.WaitGroup
}

type trackedJob struct {
	id          string
	token       string
	requestedAt time.Time
	timer       *time.Timer
}

// NewPoller wires a poller with the standard intervals.
func NewPoller(api StatusAPI, history *History, listener Listener, logger zerolog.Logger) *Poller {
	return &Poller{
		api:              api,
		history:          history,
		listener:         listener,
		logger:           logger,
		MinPollInterval:  5 * time.Second,
		FallbackInterval: 15 * time.Second,
		Watchdog:         24 * time.Hour,
		now:              time.Now,
		tracked:          make(map[string]*trackedJob),
	}
}

// Track starts polling a freshly created job. The first poll fires after
// max(eta, MinPollInterval).
func (p *Poller) Track(jobID, token string, eta time.Duration, layers []string) {
	requestedAt := p.now()
	p.history.Put(HistoryEntry{
		JobID:       jobID,
		Token:       token,
		Layers:      layers,
		Status:      domain.StatusQueued,
		RequestedAt: requestedAt,
	})

	delay := eta
	if delay < p.MinPollInterval {
		delay = p.MinPollInterval
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if prev, ok := p.tracked[jobID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	job := &trackedJob{id: jobID, token: token, requestedAt: requestedAt}
	p.tracked[jobID] = job
	p.schedule(job, delay)
}

// Remove stops tracking a job and drops it from history. An in-flight timer
// is cancelled; a tick already running observes the removal and exits
// without rescheduling.
func (p *Poller) Remove(jobID string) {
	p.mu.Lock()
	if job, ok := p.tracked[jobID]; ok {
		if job.timer != nil {
			job.timer.Stop()
		}
		delete(p.tracked, jobID)
	}
	p.mu.Unlock()
	p.history.Remove(jobID)
}

// Regenerate asks the server to rebuild a finished or failed job and
// restarts the poll loop under the fresh token.
func (p *Poller) Regenerate(ctx context.Context, jobID string, force bool) error {
	resp, err := p.api.Regenerate(ctx, jobID, force)
	if err != nil {
		return err
	}
	entry, _ := p.history.Get(jobID)
	p.Track(jobID, resp.Token, time.Duration(resp.ETASeconds)*time.Second, entry.Layers)
	return nil
}

// Close cancels all timers and waits for running ticks to drain.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	for _, job := range p.tracked {
		if job.timer != nil {
			job.timer.Stop()
		}
	}
	p.tracked = make(map[string]*trackedJob)
	p.mu.Unlock()
	p.wg.Wait()
}

// schedule arms the job's timer. Caller holds p.mu.
func (p *Poller) schedule(job *trackedJob, delay time.Duration) {
	p.wg.Add(1)
	job.timer = time.AfterFunc(delay, func() {
		defer p.wg.Done()
		p.tick(job)
	})
}

// tick is one poll callback.
func (p *Poller) tick(job *trackedJob) {
	p.mu.Lock()
	current, ok := p.tracked[job.id]
	if !ok || current != job || p.closed {
		// Removed (or superseded by a regenerate) while the timer was
		// in flight.
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	// Watchdog: give up locally without issuing another status query.
	if p.now().Sub(job.requestedAt) > p.Watchdog {
		p.finish(job.id)
		p.history.Update(job.id, func(e *HistoryEntry) {
			e.Status = domain.StatusError
			e.Error = "timed out waiting for movie"
		})
		p.logger.Warn().Str("job_id", job.id).Msg("poller: watchdog expired, abandoning job")
		if p.listener != nil {
			p.listener.MovieFailed(job.id, "timed out waiting for movie")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	status, err := p.api.Status(ctx, job.id, job.token)
	cancel()
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.id).Msg("poller: status query failed")
		p.reschedule(job)
		return
	}

	switch status.Status {
	case domain.StatusCompleted:
		p.finish(job.id)
		p.history.Update(job.id, func(e *HistoryEntry) {
			e.Status = domain.StatusCompleted
			e.Progress = 100
			e.FrameRate = status.FrameRate
			e.NumFrames = status.NumFrames
			e.Width = status.Width
			e.Height = status.Height
			e.ArtifactURL = status.ArtifactURL
			e.ThumbnailURL = status.ThumbnailURL
			e.CompletedAt = p.now()
		})
		if entry, ok := p.history.Get(job.id); ok && p.listener != nil {
			p.listener.MovieReady(entry)
		}
	case domain.StatusError:
		p.finish(job.id)
		p.history.Update(job.id, func(e *HistoryEntry) {
			e.Status = domain.StatusError
			e.Error = status.Error
		})
		if p.listener != nil {
			p.listener.MovieFailed(job.id, status.Error)
		}
	default:
		p.history.Update(job.id, func(e *HistoryEntry) {
			e.Status = status.Status
			e.Progress = status.Progress
		})
		if p.listener != nil {
			p.listener.MovieProgress(job.id, status.Progress)
		}
		p.reschedule(job)
	}
}

// reschedule arms the next poll unless the job was removed meanwhile.
func (p *Poller) reschedule(job *trackedJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.tracked[job.id]; !ok || current != job || p.closed {
		return
	}
	p.schedule(job, p.FallbackInterval)
}

// finish drops the job from the tracked set, keeping its history entry.
func (p *Poller) finish(jobID string) {
	p.mu.Lock()
	delete(p.tracked, jobID)
	p.mu.Unlock()
}
