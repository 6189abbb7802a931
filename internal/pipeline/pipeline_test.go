package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"moviegen/internal/assembler"
	"moviegen/internal/domain"
	"moviegen/internal/encoder"
	"moviegen/internal/planner"
	"moviegen/internal/storage"
)

type memRepo struct {
	progress  []int
	completed *domain.MovieJob
	failKind  string
	failMsg   string
}

func (m *memRepo) Create(ctx context.Context, job *domain.MovieJob) error { return nil }
func (m *memRepo) GetByID(ctx context.Context, jobID string) (*domain.MovieJob, error) {
	return nil, domain.ErrNotFound
}
func (m *memRepo) Claim(ctx context.Context) (*domain.MovieJob, error) {
	return nil, domain.ErrNotFound
}
func (m *memRepo) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	m.progress = append(m.progress, progress)
	return nil
}
func (m *memRepo) Complete(ctx context.Context, job *domain.MovieJob) error {
	m.completed = job
	return nil
}
func (m *memRepo) Fail(ctx context.Context, jobID, kind, message string) error {
	m.failKind, m.failMsg = kind, message
	return nil
}
func (m *memRepo) Requeue(ctx context.Context, jobID string) (string, error) {
	return "", domain.ErrNotFound
}

type archiveStub struct {
	origin time.Time
	step   time.Duration
	count  int
}

func (a *archiveStub) Nearest(ctx context.Context, layerID string, instant time.Time) (*domain.ImageRecord, error) {
	if a.count == 0 {
		return nil, domain.ErrNotFound
	}
	bucket := int64(instant.Sub(a.origin) / a.step)
	return &domain.ImageRecord{ID: bucket, LayerID: layerID, ObservedAt: a.origin.Add(time.Duration(bucket) * a.step)}, nil
}

func (a *archiveStub) Count(ctx context.Context, layerID string, window domain.TimeWindow) (int, error) {
	return a.count, nil
}

type builderStub struct{}

func (builderStub) RenderFrame(ctx context.Context, spec domain.FrameSpec) (string, error) {
	path := fmt.Sprintf("%s/frame-%03d.png", spec.OutputDir, spec.Index)
	return path, os.WriteFile(path, []byte("png"), 0o644)
}

type runnerStub struct{ size int }

func (r runnerStub) Run(ctx context.Context, args ...string) (string, error) {
	out := args[len(args)-1]
	size := r.size
	if strings.Contains(out, "preview") {
		size = 2048
	}
	return "", os.WriteFile(out, make([]byte, size), 0o644)
}

func newTestPipeline(t *testing.T, repo *memRepo, archive *archiveStub, artifactSize int) (*Pipeline, *storage.CacheStore) {
	t.Helper()
	store, err := storage.NewCacheStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	log := zerolog.Nop()
	pl := planner.NewFramePlanner(archive, 300, 20, 30)
	asm := assembler.New(archive, builderStub{}, log)
	enc := encoder.New(runnerStub{size: artifactSize}, encoder.DefaultProfiles(), 1000, log)
	return New(repo, store, pl, asm, enc, 1920, 1200, log), store
}

func testJob() *domain.MovieJob {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &domain.MovieJob{
		ID:         "00000000-0000-0000-0000-000000000001",
		Token:      "tok",
		Layers:     []string{"AIA 171"},
		Region:     domain.RegionOfInterest{X1: -1024, Y1: -512, X2: 1024, Y2: 512},
		ImageScale: 2,
		Format:     "mp4",
		StartTime:  start,
		EndTime:    start.Add(24 * time.Hour),
		Status:     domain.StatusProcessing,
	}
}

func TestRunCompletesJob(t *testing.T) {
	repo := &memRepo{}
	archive := &archiveStub{origin: testJob().StartTime, step: time.Hour, count: 24}
	p, store := newTestPipeline(t, repo, archive, 4096)

	job := testJob()
	if err := p.Run(context.Background(), job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if repo.completed == nil {
		t.Fatal("job not marked completed")
	}
	if repo.completed.NumFrames != 24 {
		t.Fatalf("NumFrames = %d, want 24", repo.completed.NumFrames)
	}
	if repo.completed.StreamKey == "" || repo.completed.HQKey == "" {
		t.Fatalf("artifact keys missing: %+v", repo.completed)
	}
	if store.IsInvalid(job.ID) {
		t.Fatal("completed job carries INVALID marker")
	}
	for i := 1; i < len(repo.progress); i++ {
		if repo.progress[i] <= repo.progress[i-1] {
			t.Fatalf("progress not monotonic: %v", repo.progress)
		}
	}
}

func TestRunInsufficientData(t *testing.T) {
	repo := &memRepo{}
	archive := &archiveStub{origin: testJob().StartTime, step: time.Hour, count: 0}
	p, store := newTestPipeline(t, repo, archive, 4096)

	job := testJob()
	err := p.Run(context.Background(), job)
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("Run() error = %v, want ErrInsufficientData", err)
	}
	if repo.failKind != "insufficient_data" {
		t.Fatalf("fail kind = %q, want insufficient_data", repo.failKind)
	}
	if !store.IsInvalid(job.ID) {
		t.Fatal("failed job missing INVALID marker")
	}
}

func TestRunEncodeFailure(t *testing.T) {
	repo := &memRepo{}
	archive := &archiveStub{origin: testJob().StartTime, step: time.Hour, count: 24}
	p, store := newTestPipeline(t, repo, archive, 10) // artifacts below threshold

	job := testJob()
	if err := p.Run(context.Background(), job); !errors.Is(err, domain.ErrEncoding) {
		t.Fatalf("Run() error = %v, want ErrEncoding", err)
	}
	if repo.failKind != "encoding" {
		t.Fatalf("fail kind = %q, want encoding", repo.failKind)
	}
	if !store.IsInvalid(job.ID) {
		t.Fatal("failed job missing INVALID marker")
	}
	frames, err := store.FramesDir(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(frames)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("intermediate frames not cleaned up: %d entries", len(entries))
	}
}

func TestRunClearsStaleInvalidMarker(t *testing.T) {
	repo := &memRepo{}
	archive := &archiveStub{origin: testJob().StartTime, step: time.Hour, count: 24}
	p, store := newTestPipeline(t, repo, archive, 4096)

	job := testJob()
	if err := store.MarkInvalid(job.ID); err != nil {
		t.Fatal(err)
	}
	if err := p.Run(context.Background(), job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.IsInvalid(job.ID) {
		t.Fatal("stale INVALID marker survived a successful regenerate run")
	}
}
