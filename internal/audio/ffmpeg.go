package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// DefaultFFmpegPath is the binary used when FFmpegEncoder.Path is empty.
const DefaultFFmpegPath = "ffmpeg"

const encodeChunkSize = 32 * 1024

// FFmpegEncoder encodes raw PCM into webm, ogg or mp4 containers by piping it
// through an ffmpeg subprocess.
type FFmpegEncoder struct {
	Path string

	probeOnce sync.Once
	caps      capabilities
	probeErr  error
}

type capabilities struct {
	muxers   map[string]bool
	encoders map[string]bool
}

// NewFFmpegEncoder returns an encoder using the given binary.
func NewFFmpegEncoder(path string) *FFmpegEncoder {
	return &FFmpegEncoder{Path: path}
}

func (e *FFmpegEncoder) path() string {
	if strings.TrimSpace(e.Path) == "" {
		return DefaultFFmpegPath
	}
	return e.Path
}

// Probe runs ffmpeg once to list available muxers and encoders.
func (e *FFmpegEncoder) Probe(ctx context.Context) error {
	e.probeOnce.Do(func() {
		muxers, err := exec.CommandContext(ctx, e.path(), "-hide_banner", "-muxers").Output()
		if err != nil {
			e.probeErr = &DeviceError{Device: "ffmpeg", Op: "probe", Err: err}
			return
		}
		encoders, err := exec.CommandContext(ctx, e.path(), "-hide_banner", "-encoders").Output()
		if err != nil {
			e.probeErr = &DeviceError{Device: "ffmpeg", Op: "probe", Err: err}
			return
		}
		e.caps = parseCapabilities(string(muxers), string(encoders))
	})
	return e.probeErr
}

// Supports implements Encoder.
func (e *FFmpegEncoder) Supports(enc Encoding) bool {
	if err := e.Probe(context.Background()); err != nil {
		return false
	}
	return e.caps.supports(enc)
}

func (c capabilities) supports(enc Encoding) bool {
	switch enc {
	case EncodingWebMOpus, EncodingWebM:
		return c.muxers["webm"] && c.encoders["libopus"]
	case EncodingOggOpus:
		return c.muxers["ogg"] && c.encoders["libopus"]
	case EncodingMP4:
		return c.muxers["mp4"] && c.encoders["aac"]
	default:
		return false
	}
}

// parseCapabilities reads the name column of `ffmpeg -muxers` and
// `ffmpeg -encoders` listings. Both print a legend, a dashed separator and
// then one "<flags> <name> <description>" row per entry.
func parseCapabilities(muxers, encoders string) capabilities {
	return capabilities{
		muxers:   parseListing(muxers),
		encoders: parseListing(encoders),
	}
}

func parseListing(out string) map[string]bool {
	names := make(map[string]bool)
	body := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "--") {
			body = true
			continue
		}
		if !body {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// Muxer rows may list several comma separated names.
		for _, name := range strings.Split(fields[1], ",") {
			names[name] = true
		}
	}
	return names
}

// encodeArgs returns the ffmpeg arguments that read s16le PCM from stdin and
// write the container to stdout.
func encodeArgs(enc Encoding, f Format) ([]string, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "s16le",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
		"-i", "pipe:0",
	}
	switch enc {
	case EncodingWebMOpus, EncodingWebM:
		args = append(args, "-c:a", "libopus", "-f", "webm")
	case EncodingOggOpus:
		args = append(args, "-c:a", "libopus", "-f", "ogg")
	case EncodingMP4:
		args = append(args, "-c:a", "aac", "-f", "mp4", "-movflags", "frag_keyframe+empty_moov")
	default:
		return nil, fmt.Errorf("encode %q: %w", enc, ErrUnsupported)
	}
	return append(args, "pipe:1"), nil
}

// Start implements Encoder.
func (e *FFmpegEncoder) Start(enc Encoding, f Format) (EncodeSession, error) {
	args, err := encodeArgs(enc, f)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(e.path(), args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &DeviceError{Device: "ffmpeg", Op: "start", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, &DeviceError{Device: "ffmpeg", Op: "start", Err: err}
	}
	s := &ffmpegSession{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	cmd.Stderr = &s.stderr
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, &DeviceError{Device: "ffmpeg", Op: "start", Err: err}
	}
	go s.collect(stdout)
	return s, nil
}

type ffmpegSession struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer

	mu      sync.Mutex
	chunks  [][]byte
	readErr error
	done    chan struct{}
	closed  bool
}

func (s *ffmpegSession) collect(r io.Reader) {
	defer close(s.done)
	buf := make([]byte, encodeChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.mu.Lock()
			s.chunks = append(s.chunks, chunk)
			s.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			return
		}
	}
}

func (s *ffmpegSession) Write(pcm []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return &DeviceError{Device: "ffmpeg", Op: "write", Err: io.ErrClosedPipe}
	}
	if _, err := s.stdin.Write(pcm); err != nil {
		return &DeviceError{Device: "ffmpeg", Op: "write", Err: err}
	}
	return nil
}

func (s *ffmpegSession) closeInput() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	_ = s.stdin.Close()
	return true
}

// Finish closes the input, waits for the container to be flushed and returns
// the encoded chunks in output order.
func (s *ffmpegSession) Finish(ctx context.Context) ([][]byte, error) {
	if !s.closeInput() {
		return nil, &DeviceError{Device: "ffmpeg", Op: "finish", Err: io.ErrClosedPipe}
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		_ = s.cmd.Process.Kill()
		<-s.done
		_ = s.cmd.Wait()
		return nil, ctx.Err()
	}
	if err := s.cmd.Wait(); err != nil {
		return nil, &DeviceError{Device: "ffmpeg", Op: "finish", Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(s.stderr.String()))}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, &DeviceError{Device: "ffmpeg", Op: "read", Err: s.readErr}
	}
	return s.chunks, nil
}

// Abort kills the encoder and drops its output.
func (s *ffmpegSession) Abort() error {
	if !s.closeInput() {
		return nil
	}
	_ = s.cmd.Process.Kill()
	<-s.done
	_ = s.cmd.Wait()
	return nil
}
