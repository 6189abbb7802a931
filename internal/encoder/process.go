package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// Process wraps invocations of the external encoding binary. The binary's
// exit status is captured but is not what decides success: historically the
// encoder was driven through a shell that swallowed exit codes, so artifact
// validation (ValidateArtifact) stays the authoritative check and the exit
// status is advisory.
type Process struct {
	Bin    string
	Logger zerolog.Logger
}

// Run executes the binary with the given arguments and returns its combined
// output. A non-zero exit is returned as an error alongside the output.
func (p *Process) Run(ctx context.Context, args ...string) (string, error) {
	bin := p.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	p.Logger.Debug().Str("bin", bin).Strs("args", args).Msg("encoder: exec")
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("run %s: %w", bin, err)
	}
	return out.String(), nil
}
