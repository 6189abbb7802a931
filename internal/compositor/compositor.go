// Package compositor renders composite frames by invoking the external
// screenshot builder binary.
package compositor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"moviegen/internal/domain"
)

// ExecBuilder implements domain.FrameBuilder over a command-line compositor.
// The binary receives the layer image paths in layer order plus the region,
// scale and output geometry, and must write equally-sized rasters for every
// frame of a job.
type ExecBuilder struct {
	Bin    string
	Logger zerolog.Logger
}

// NewExecBuilder wires a builder around the configured binary.
func NewExecBuilder(bin string, logger zerolog.Logger) *ExecBuilder {
	return &ExecBuilder{Bin: bin, Logger: logger}
}

// RenderFrame composites one frame and returns the written file path.
func (b *ExecBuilder) RenderFrame(ctx context.Context, spec domain.FrameSpec) (string, error) {
	if b.Bin == "" {
		return "", fmt.Errorf("compositor: no binary configured")
	}
	out := filepath.Join(spec.OutputDir, fmt.Sprintf("frame-%04d.png", spec.Index))

	args := []string{
		"--region", fmt.Sprintf("%g,%g,%g,%g", spec.Region.X1, spec.Region.Y1, spec.Region.X2, spec.Region.Y2),
		"--scale", strconv.FormatFloat(spec.ImageScale, 'f', -1, 64),
		"--size", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"--time", spec.Instant.UTC().Format(time.RFC3339),
		"--output", out,
	}
	if spec.Watermark {
		args = append(args, "--watermark")
	}
	for _, layer := range sortedLayers(spec.Images) {
		args = append(args, "--layer", layer+"="+spec.Images[layer].FilePath)
	}

	cmd := exec.CommandContext(ctx, b.Bin, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		b.Logger.Error().Err(err).Str("job_id", spec.JobID).Int("frame", spec.Index).Str("output", combined.String()).Msg("compositor: render failed")
		return "", fmt.Errorf("compositor: render frame %d: %w", spec.Index, err)
	}
	return out, nil
}

// sortedLayers keeps the layer argument order stable across frames.
func sortedLayers(images map[string]domain.ImageRecord) []string {
	layers := make([]string, 0, len(images))
	for layer := range images {
		layers = append(layers, layer)
	}
	sort.Strings(layers)
	return layers
}
