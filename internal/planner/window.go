package planner

import (
	"time"

	"moviegen/internal/domain"
)

// WindowResolver derives an absolute observation window from a requested
// start time and optional end time.
type WindowResolver struct {
	DefaultWindow time.Duration
	Now           func() time.Time
}

// NewWindowResolver returns a resolver using the wall clock.
func NewWindowResolver(defaultWindow time.Duration) *WindowResolver {
	return &WindowResolver{DefaultWindow: defaultWindow, Now: time.Now}
}

// Resolve produces a window. When no end time is given the window spans the
// default length from the start. When the start lies closer to now than one
// default window, the window is shifted to end at now instead; a very recent
// explicit start is deliberately overridden so the pipeline never asks the
// archive for data from the future.
func (r *WindowResolver) Resolve(start time.Time, end *time.Time) domain.TimeWindow {
	w := domain.TimeWindow{Start: start}
	if end != nil {
		w.End = *end
	} else {
		w.End = start.Add(r.DefaultWindow)
	}

	now := r.Now()
	if now.Sub(start) < r.DefaultWindow {
		w.End = now
		w.Start = now.Add(-r.DefaultWindow)
	}
	return w
}
