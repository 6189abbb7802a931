package client

import (
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"moviegen/internal/domain"
)

// HistoryEntry is one movie the user has requested, kept locally so the UI
// can list past movies and replay finished ones.
type HistoryEntry struct {
	JobID        string
	Token        string
	Layers       []string
	Status       domain.MovieStatus
	Progress     int
	FrameRate    float64
	NumFrames    int
	Width        int
	Height       int
	ArtifactURL  string
	ThumbnailURL string
	Error        string
	RequestedAt  time.Time
	CompletedAt  time.Time
}

var titleCaser = cases.Title(language.English)

// DisplayTitle renders a human-facing name for the movie from its layers.
func (e HistoryEntry) DisplayTitle() string {
	if len(e.Layers) == 0 {
		return "Movie"
	}
	names := make([]string, len(e.Layers))
	for i, layer := range e.Layers {
		names[i] = titleCaser.String(strings.ToLower(layer))
	}
	return strings.Join(names, ", ")
}

// History is the client-local record of requested movies.
type History struct {
	mu      sync.Mutex
	entries map[string]*HistoryEntry
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{entries: make(map[string]*HistoryEntry)}
}

// Put inserts or replaces an entry.
func (h *History) Put(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[entry.JobID] = &entry
}

// Get returns a copy of the entry for a job.
func (h *History) Get(jobID string) (HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[jobID]
	if !ok {
		return HistoryEntry{}, false
	}
	return *e, true
}

// Remove drops a job from history.
func (h *History) Remove(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, jobID)
}

// Update applies fn to the stored entry, if present.
func (h *History) Update(jobID string, fn func(*HistoryEntry)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entries[jobID]; ok {
		fn(e)
	}
}

// List returns entries most recent first.
func (h *History) List() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out
}
