// Package encoder drives the external video encoder to turn an assembled
// frame sequence into playable artifacts.
package encoder

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"moviegen/internal/domain"
)

// maxAspect is the widest tolerated output ratio. Wider sources get their
// height padded up; width is never padded.
const maxAspect = 16.0 / 9.0

// Runner abstracts the external process invocation.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// Encoder produces the streaming and high-quality artifacts for a job.
type Encoder struct {
	proc     Runner
	profiles map[string]Profile
	logger   zerolog.Logger

	// MinVideoBytes is the smallest artifact size accepted as a real
	// video. Anything below it fails validation no matter what the
	// process reported.
	MinVideoBytes int64
}

// New wires an encoder over the given process runner and profile table.
func New(proc Runner, profiles map[string]Profile, minVideoBytes int64, logger zerolog.Logger) *Encoder {
	return &Encoder{proc: proc, profiles: profiles, logger: logger, MinVideoBytes: minVideoBytes}
}

// Input is one encode request.
type Input struct {
	JobID     string
	Frames    []string
	FramesDir string
	OutputDir string
	Width     int
	Height    int
	FrameRate float64
	Quality   int
	Format    string
}

// Output reports the produced artifacts and their realized parameters.
type Output struct {
	StreamPath    string
	HQPath        string
	ThumbnailPath string
	Width         int
	Height        int
	FrameRate     float64
}

// ClampDimensions converts a region and image scale to pixel dimensions,
// scaling all three down proportionally when either dimension exceeds its
// cap so the aspect ratio is preserved.
func ClampDimensions(region domain.RegionOfInterest, scale float64, maxWidth, maxHeight int) (int, int, float64) {
	w := region.Width() / scale
	h := region.Height() / scale

	factor := 1.0
	if maxWidth > 0 && w > float64(maxWidth) {
		factor = w / float64(maxWidth)
	}
	if maxHeight > 0 && h/factor > float64(maxHeight) {
		factor = h / float64(maxHeight)
	}
	if factor > 1 {
		w /= factor
		h /= factor
		scale *= factor
	}
	return int(math.Round(w)), int(math.Round(h)), scale
}

// PadDimensions returns the output dimensions after aspect correction. A
// source wider than 16:9 has its height raised until the ratio is compliant;
// narrower sources pass through. Both dimensions are rounded up to even
// values for the codecs.
func PadDimensions(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return even(width), even(height)
	}
	if float64(width)/float64(height) > maxAspect {
		height = int(math.Ceil(float64(width) / maxAspect))
	}
	return even(width), even(height)
}

func even(v int) int {
	if v%2 != 0 {
		return v + 1
	}
	return v
}

// Encode runs the streaming profile and the high-quality profile selected by
// the requested format, validates both artifacts, renders a thumbnail, and
// removes the intermediate frames whether or not the encodes succeeded.
func (e *Encoder) Encode(ctx context.Context, in Input) (*Output, error) {
	defer func() {
		if in.FramesDir != "" {
			_ = os.RemoveAll(in.FramesDir)
		}
	}()

	if len(in.Frames) == 0 {
		return nil, domain.ErrInsufficientData
	}

	outW, outH := PadDimensions(in.Width, in.Height)

	hqProfile := ProfileHQ
	if strings.EqualFold(in.Format, "webm") {
		hqProfile = ProfileWebM
	}

	listPath := filepath.Join(in.OutputDir, "frames.txt")
	out := &Output{Width: outW, Height: outH}

	for _, name := range []string{ProfileStream, hqProfile} {
		profile, ok := e.profiles[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown profile %q", domain.ErrEncoding, name)
		}
		fps := effectiveRate(in.FrameRate, profile)
		if out.FrameRate == 0 || fps < out.FrameRate {
			out.FrameRate = fps
		}

		if err := writeConcatList(listPath, in.Frames, fps); err != nil {
			return nil, err
		}

		artifact := filepath.Join(in.OutputDir, "movie-"+profile.Name+"."+profile.Container)
		args := e.buildArgs(profile, listPath, fps, in, outW, outH, artifact)

		log, runErr := e.proc.Run(ctx, args...)
		if runErr != nil {
			e.logger.Warn().Err(runErr).Str("job_id", in.JobID).Str("profile", profile.Name).Msg("encoder: process exit not clean")
		}
		if err := e.ValidateArtifact(artifact); err != nil {
			e.logger.Error().Str("job_id", in.JobID).Str("profile", profile.Name).Str("output", tail(log, 512)).Msg("encoder: artifact rejected")
			return nil, fmt.Errorf("profile %s: %w", profile.Name, err)
		}

		if profile.Name == ProfileStream {
			out.StreamPath = artifact
		} else {
			out.HQPath = artifact
		}
	}

	thumb, err := e.renderThumbnail(ctx, in)
	if err != nil {
		e.logger.Warn().Err(err).Str("job_id", in.JobID).Msg("encoder: thumbnail failed")
	} else {
		out.ThumbnailPath = thumb
	}
	return out, nil
}

// ValidateArtifact is the post-condition deciding encode success. The
// process exit status is not trusted; a file too small to be a real video
// means the encode failed.
func (e *Encoder) ValidateArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: artifact missing: %v", domain.ErrEncoding, err)
	}
	if info.Size() < e.MinVideoBytes {
		return fmt.Errorf("%w: artifact is %d bytes, below the %d byte minimum", domain.ErrEncoding, info.Size(), e.MinVideoBytes)
	}
	return nil
}

func (e *Encoder) buildArgs(p Profile, listPath string, fps float64, in Input, outW, outH int, artifact string) []string {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-r", formatRate(fps),
		"-c:v", p.Codec,
	}
	if p.PixelFmt != "" {
		args = append(args, "-pix_fmt", p.PixelFmt)
	}
	if p.Preset != "" {
		args = append(args, "-preset", p.Preset)
	}
	if p.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(qualityCRF(p.CRF, in.Quality)))
	}
	if p.Bitrate != "" {
		args = append(args, "-b:v", p.Bitrate)
	}
	if outH != in.Height || outW != in.Width {
		args = append(args, "-vf", fmt.Sprintf("pad=%d:%d:0:0:black", outW, outH))
	}
	if p.Faststart {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, p.ExtraArgs...)
	return append(args, artifact)
}

// renderThumbnail extracts a preview still from the middle frame.
func (e *Encoder) renderThumbnail(ctx context.Context, in Input) (string, error) {
	src := in.Frames[len(in.Frames)/2]
	dst := filepath.Join(in.OutputDir, "preview.png")
	if _, err := e.proc.Run(ctx, "-y", "-i", src, "-vf", "scale=256:-1", dst); err != nil {
		return "", err
	}
	return dst, nil
}

// qualityCRF tightens or loosens the profile CRF around the midpoint
// quality of 5, clamped to a sane x264/vp9 range.
func qualityCRF(base, quality int) int {
	if quality <= 0 {
		return base
	}
	crf := base - (quality - 5)
	if crf < 10 {
		crf = 10
	}
	if crf > 45 {
		crf = 45
	}
	return crf
}

func effectiveRate(fps float64, p Profile) float64 {
	if fps < p.MinFrameRate {
		fps = p.MinFrameRate
	}
	if fps < 1 {
		fps = 1
	}
	return fps
}

// writeConcatList writes the encoder input list. Per-entry durations carry
// the frame rate so duplicated trailing frames keep their full tick.
func writeConcatList(path string, frames []string, fps float64) error {
	var b strings.Builder
	for _, frame := range frames {
		fmt.Fprintf(&b, "file '%s'\n", frame)
		fmt.Fprintf(&b, "duration %s\n", formatRate(1/fps))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write frame list: %w", err)
	}
	return nil
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
