package assembler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"moviegen/internal/domain"
)

// fakeLookup serves images whose id changes every `step` of elapsed window
// time, simulating a layer with coarser cadence than the movie plan.
type fakeLookup struct {
	origin time.Time
	step   time.Duration
	empty  bool
}

func (f *fakeLookup) Nearest(ctx context.Context, layerID string, instant time.Time) (*domain.ImageRecord, error) {
	if f.empty {
		return nil, domain.ErrNotFound
	}
	bucket := int64(instant.Sub(f.origin) / f.step)
	return &domain.ImageRecord{
		ID:         bucket,
		LayerID:    layerID,
		ObservedAt: f.origin.Add(time.Duration(bucket) * f.step),
		FilePath:   fmt.Sprintf("/archive/%s/%d.jp2", layerID, bucket),
	}, nil
}

func (f *fakeLookup) Count(ctx context.Context, layerID string, window domain.TimeWindow) (int, error) {
	return int(window.Duration() / f.step), nil
}

type fakeBuilder struct {
	rendered int
	fail     bool
}

func (f *fakeBuilder) RenderFrame(ctx context.Context, spec domain.FrameSpec) (string, error) {
	if f.fail {
		return "", errors.New("compositor crashed")
	}
	f.rendered++
	return fmt.Sprintf("%s/frame-%03d.png", spec.OutputDir, spec.Index), nil
}

func testInput(plan domain.FramePlan, window domain.TimeWindow) Input {
	return Input{
		JobID:     "job-1",
		Plan:      plan,
		Window:    window,
		Layers:    []string{"A"},
		Width:     1024,
		Height:    1024,
		FramesDir: "/tmp/frames",
	}
}

func TestAssembleCollapsesDuplicates(t *testing.T) {
	origin := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	window := domain.TimeWindow{Start: origin, End: origin.Add(10 * time.Hour)}
	// 10 planned steps over a window containing only 3 distinct images.
	lookup := &fakeLookup{origin: origin, step: window.Duration() / 3}
	builder := &fakeBuilder{}
	a := New(lookup, builder, zerolog.Nop())

	plan := domain.FramePlan{NumFrames: 10, Cadence: time.Hour, FrameRate: 10}
	res, err := a.Assemble(context.Background(), testInput(plan, window))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if res.NumFrames != 3 {
		t.Fatalf("NumFrames = %d, want 3 distinct frames", res.NumFrames)
	}
	if len(res.Frames) != 4 {
		t.Fatalf("len(Frames) = %d, want 3 + trailing duplicate", len(res.Frames))
	}
	if res.Frames[2] != res.Frames[3] {
		t.Fatalf("trailing frame %q does not duplicate the last frame %q", res.Frames[3], res.Frames[2])
	}
	if builder.rendered != 3 {
		t.Fatalf("builder rendered %d frames, want 3 (duplicates must not re-render)", builder.rendered)
	}
}

func TestAssembleEmptyWindowFails(t *testing.T) {
	origin := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	window := domain.TimeWindow{Start: origin, End: origin.Add(time.Hour)}
	a := New(&fakeLookup{empty: true}, &fakeBuilder{}, zerolog.Nop())

	plan := domain.FramePlan{NumFrames: 5, Cadence: 12 * time.Minute}
	_, err := a.Assemble(context.Background(), testInput(plan, window))
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("Assemble() error = %v, want ErrInsufficientData", err)
	}
}

func TestAssembleBuilderErrorPropagates(t *testing.T) {
	origin := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	window := domain.TimeWindow{Start: origin, End: origin.Add(time.Hour)}
	a := New(&fakeLookup{origin: origin, step: time.Minute}, &fakeBuilder{fail: true}, zerolog.Nop())

	plan := domain.FramePlan{NumFrames: 3, Cadence: 20 * time.Minute}
	if _, err := a.Assemble(context.Background(), testInput(plan, window)); err == nil {
		t.Fatal("Assemble() error = nil, want render failure")
	}
}

func TestAssembleReportsProgress(t *testing.T) {
	origin := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	window := domain.TimeWindow{Start: origin, End: origin.Add(time.Hour)}
	a := New(&fakeLookup{origin: origin, step: time.Minute}, &fakeBuilder{}, zerolog.Nop())

	var calls []int
	in := testInput(domain.FramePlan{NumFrames: 4, Cadence: 15 * time.Minute}, window)
	in.OnProgress = func(done, total int) { calls = append(calls, done) }

	res, err := a.Assemble(context.Background(), in)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(calls) != res.NumFrames {
		t.Fatalf("progress calls = %d, want %d", len(calls), res.NumFrames)
	}
	for i, done := range calls {
		if done != i+1 {
			t.Fatalf("progress call %d reported %d frames done", i, done)
		}
	}
}
