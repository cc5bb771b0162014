package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// DefaultFFplayPath is the binary used when FFplayPlayer.Path is empty.
const DefaultFFplayPath = "ffplay"

// FFplayPlayer plays a compressed buffer through an ffplay subprocess, letting
// ffplay probe the container. It is the fallback when the primary decode or
// output path fails.
type FFplayPlayer struct {
	Path string
}

// NewFFplayPlayer returns a player using the given binary.
func NewFFplayPlayer(path string) *FFplayPlayer {
	return &FFplayPlayer{Path: path}
}

func (p *FFplayPlayer) path() string {
	if p == nil || strings.TrimSpace(p.Path) == "" {
		return DefaultFFplayPath
	}
	return p.Path
}

// Available reports whether the ffplay binary can be found.
func (p *FFplayPlayer) Available() bool {
	_, err := exec.LookPath(p.path())
	return err == nil
}

func playArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-autoexit",
		"-i", "pipe:0",
	}
}

// Play implements FallbackPlayer. It blocks until ffplay exits.
func (p *FFplayPlayer) Play(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return &DeviceError{Device: "ffplay", Op: "play", Err: fmt.Errorf("empty buffer: %w", ErrUnsupported)}
	}
	cmd := exec.CommandContext(ctx, p.path(), playArgs()...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	var stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return &DeviceError{Device: "ffplay", Op: "play", Err: err}
	}
	return nil
}
