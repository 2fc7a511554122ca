// Package ffmpeg runs the external transcoder and probe binaries, extracting
// live progress from the transcoder's stderr stream.
package ffmpeg

import (
	"fmt"
	"os/exec"

	"github.com/mediaforge/mediaforge/internal/models"
)

// ResolveBinary locates a transcoder binary. An explicit configured path is
// used verbatim; otherwise the name is resolved on PATH. A missing binary is
// reported as ErrTranscoderMissing so callers can distinguish it from a
// runtime failure.
func ResolveBinary(configured, name string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found on PATH", models.ErrTranscoderMissing, name)
	}
	return path, nil
}
