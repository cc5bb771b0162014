// Package playback renders inbound speech replies. Each reply is decoded and
// played through the shared output device; when that fails the raw buffer is
// handed to a fallback player. Every reply ends with a Result so the caller
// can always clear its busy indicator.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/igun997/ai-live/internal/audio"
)

// Path records which route rendered a reply.
type Path string

const (
	PathPrimary  Path = "primary"
	PathFallback Path = "fallback"
	PathFailed   Path = "failed"
)

// Result is the completion report of one Job.
type Result struct {
	ID       uint64
	Path     Path
	Duration time.Duration
	// Cause is the primary-path failure that triggered the fallback.
	Cause error
	// Err is set only when both paths failed.
	Err error
}

// Options configures a Controller.
type Options struct {
	// NewOutput creates the output device. It is called at most once.
	NewOutput func() (audio.Output, error)
	Token     *audio.Token
	Logger    *slog.Logger
}

// Controller owns the lazily created output device and tracks active replies.
type Controller struct {
	decoder  audio.Decoder
	fallback audio.FallbackPlayer
	opts     Options
	log      *slog.Logger

	outputOnce sync.Once
	output     audio.Output
	outputErr  error

	mu     sync.Mutex
	seq    uint64
	active map[uint64]bool
}

// New creates a Controller. fallback may be nil.
func New(dec audio.Decoder, fallback audio.FallbackPlayer, opts Options) *Controller {
	if opts.Token == nil {
		opts.Token = &audio.Token{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.NewOutput == nil {
		opts.NewOutput = func() (audio.Output, error) { return nil, audio.ErrOutputUnavailable }
	}
	return &Controller{
		decoder:  dec,
		fallback: fallback,
		opts:     opts,
		log:      opts.Logger,
		active:   make(map[uint64]bool),
	}
}

// Job is one reply waiting to be rendered.
type Job struct {
	ID  uint64
	buf []byte
	c   *Controller
}

// Start marks a playback active and takes the audio token. Overlapping
// replies are allowed; the token is held until the last one finishes.
func (c *Controller) Start(buf []byte) *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.active[c.seq] = true
	if !c.opts.Token.TryAcquire(audio.OwnerPlayback) {
		c.log.Warn("playback started while capture holds the audio token", "playback", c.seq)
	}
	return &Job{ID: c.seq, buf: buf, c: c}
}

// Active reports whether any reply is still playing.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active) > 0
}

// Finish marks the job's playback inactive. It is safe to call for a result
// that was already finished.
func (c *Controller) Finish(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, r.ID)
	if len(c.active) == 0 {
		c.opts.Token.Release(audio.OwnerPlayback)
	}
}

// Warm creates the output device if needed and resumes it.
func (c *Controller) Warm(context.Context) error {
	_, err := c.ensureOutput()
	return err
}

func (c *Controller) ensureOutput() (audio.Output, error) {
	c.outputOnce.Do(func() {
		c.output, c.outputErr = c.opts.NewOutput()
		if c.outputErr != nil {
			c.log.Warn("audio output unavailable, replies use the fallback player", "error", c.outputErr)
		}
	})
	if c.outputErr != nil {
		return nil, c.outputErr
	}
	if err := c.output.Resume(); err != nil {
		return nil, err
	}
	return c.output, nil
}

// Close releases the output device.
func (c *Controller) Close() error {
	if c.output != nil {
		return c.output.Close()
	}
	return nil
}

// Run renders the reply. It blocks until playback ends and always returns a
// Result.
func (j *Job) Run(ctx context.Context) Result {
	c := j.c
	res := Result{ID: j.ID}

	cause := j.playPrimary(ctx, &res)
	if cause == nil {
		res.Path = PathPrimary
		return res
	}
	res.Cause = cause
	c.log.Debug("primary playback failed, trying fallback", "playback", j.ID, "error", cause)

	if err := ctx.Err(); err != nil {
		res.Path = PathFailed
		res.Err = errors.Join(cause, err)
		return res
	}
	if c.fallback == nil {
		res.Path = PathFailed
		res.Err = errors.Join(cause, fmt.Errorf("fallback: %w", audio.ErrOutputUnavailable))
		return res
	}
	if err := c.fallback.Play(ctx, j.buf); err != nil {
		res.Path = PathFailed
		res.Err = errors.Join(cause, fmt.Errorf("fallback: %w", err))
		c.log.Error("reply playback failed", "playback", j.ID, "error", res.Err)
		return res
	}
	res.Path = PathFallback
	return res
}

func (j *Job) playPrimary(ctx context.Context, res *Result) error {
	out, err := j.c.ensureOutput()
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	pcm, err := j.c.decoder.Decode(j.buf)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	res.Duration = pcm.Duration()
	if err := out.Play(ctx, pcm); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}
