package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"moviegen/internal/domain"
)

type stubAPI struct {
	mu        sync.Mutex
	responses []StatusResponse
	queries   int
	tokens    []string
	regenTok  string
}

func (s *stubAPI) Status(ctx context.Context, jobID, token string) (*StatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	s.tokens = append(s.tokens, token)
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return &resp, nil
}

func (s *stubAPI) Regenerate(ctx context.Context, jobID string, force bool) (*RegenerateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &RegenerateResponse{Token: s.regenTok, ETASeconds: 0}, nil
}

func (s *stubAPI) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

type recordingListener struct {
	ready  chan HistoryEntry
	failed chan string
}

func newRecordingListener() *recordingListener {
	return &recordingListener{ready: make(chan HistoryEntry, 4), failed: make(chan string, 4)}
}

func (l *recordingListener) MovieReady(entry HistoryEntry)       { l.ready <- entry }
func (l *recordingListener) MovieFailed(jobID, message string)   { l.failed <- message }
func (l *recordingListener) MovieProgress(jobID string, pct int) {}

func newTestPoller(api StatusAPI, listener Listener) (*Poller, *History) {
	history := NewHistory()
	p := NewPoller(api, history, listener, zerolog.Nop())
	p.MinPollInterval = 5 * time.Millisecond
	p.FallbackInterval = 5 * time.Millisecond
	return p, history
}

func TestPollerCompletesJob(t *testing.T) {
	api := &stubAPI{responses: []StatusResponse{
		{Status: domain.StatusProcessing, Progress: 40},
		{Status: domain.StatusCompleted, FrameRate: 12, NumFrames: 240, Width: 1280, Height: 720, ArtifactURL: "/static/movies/j1/movie-stream.mp4"},
	}}
	listener := newRecordingListener()
	p, history := newTestPoller(api, listener)
	defer p.Close()

	p.Track("j1", "tok-1", 0, []string{"AIA 171"})

	select {
	case entry := <-listener.ready:
		if entry.NumFrames != 240 || entry.FrameRate != 12 {
			t.Fatalf("ready entry metadata = %+v", entry)
		}
		if entry.ArtifactURL == "" {
			t.Fatal("ready entry missing artifact URL")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ready notification")
	}

	entry, ok := history.Get("j1")
	if !ok || entry.Status != domain.StatusCompleted {
		t.Fatalf("history entry = %+v, want COMPLETED", entry)
	}

	queries := api.queryCount()
	time.Sleep(50 * time.Millisecond)
	if got := api.queryCount(); got != queries {
		t.Fatalf("poller kept querying after completion: %d -> %d", queries, got)
	}
}

func TestPollerSurfacesServerError(t *testing.T) {
	api := &stubAPI{responses: []StatusResponse{
		{Status: domain.StatusError, Error: "not enough images in range"},
	}}
	listener := newRecordingListener()
	p, history := newTestPoller(api, listener)
	defer p.Close()

	p.Track("j1", "tok-1", 0, []string{"AIA 171"})

	select {
	case msg := <-listener.failed:
		if msg != "not enough images in range" {
			t.Fatalf("failure message = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failure notification")
	}
	if entry, _ := history.Get("j1"); entry.Status != domain.StatusError {
		t.Fatalf("history status = %v, want ERROR", entry.Status)
	}
}

func TestPollerWatchdogGivesUpWithoutQuery(t *testing.T) {
	api := &stubAPI{responses: []StatusResponse{{Status: domain.StatusProcessing}}}
	listener := newRecordingListener()
	p, history := newTestPoller(api, listener)
	defer p.Close()

	// Any real delay before the first tick breaches a nanosecond
	// watchdog, standing in for a job requested over 24h ago.
	p.Watchdog = time.Nanosecond

	p.Track("j1", "tok-1", 0, []string{"AIA 171"})

	select {
	case <-listener.failed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watchdog failure")
	}
	if got := api.queryCount(); got != 0 {
		t.Fatalf("watchdog breach issued %d status queries, want 0", got)
	}
	if entry, _ := history.Get("j1"); entry.Status != domain.StatusError {
		t.Fatalf("history status = %v, want locally marked ERROR", entry.Status)
	}
}

func TestPollerRemoveCancelsPolling(t *testing.T) {
	api := &stubAPI{responses: []StatusResponse{{Status: domain.StatusProcessing}}}
	p, history := newTestPoller(api, newRecordingListener())
	defer p.Close()

	p.Track("j1", "tok-1", time.Hour, []string{"AIA 171"})
	p.Remove("j1")

	time.Sleep(30 * time.Millisecond)
	if got := api.queryCount(); got != 0 {
		t.Fatalf("removed job was still polled %d times", got)
	}
	if _, ok := history.Get("j1"); ok {
		t.Fatal("removed job still present in history")
	}
}

func TestPollerRegenerateUsesFreshToken(t *testing.T) {
	api := &stubAPI{
		responses: []StatusResponse{{Status: domain.StatusCompleted}},
		regenTok:  "tok-2",
	}
	listener := newRecordingListener()
	p, _ := newTestPoller(api, listener)
	defer p.Close()

	p.history.Put(HistoryEntry{JobID: "j1", Token: "tok-1", Status: domain.StatusError, Layers: []string{"AIA 171"}})
	if err := p.Regenerate(context.Background(), "j1", false); err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}

	select {
	case <-listener.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for regenerated job to complete")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.tokens) == 0 || api.tokens[0] != "tok-2" {
		t.Fatalf("status polled with tokens %v, want fresh tok-2", api.tokens)
	}
}

func TestHistoryDisplayTitle(t *testing.T) {
	entry := HistoryEntry{Layers: []string{"AIA 171", "lasco c2"}}
	if got, want := entry.DisplayTitle(), "Aia 171, Lasco C2"; got != want {
		t.Fatalf("DisplayTitle() = %q, want %q", got, want)
	}
}
