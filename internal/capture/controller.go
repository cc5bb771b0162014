// Package capture turns a press-and-hold gesture into at most one encoded
// utterance. The controller owns the microphone stream from a successful
// acquisition until release and closes it on every exit path.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/igun997/ai-live/internal/audio"
)

// DefaultMinDuration is the shortest recording that is transmitted.
const DefaultMinDuration = 600 * time.Millisecond

var (
	// ErrRecording is returned by Begin while a recording is active or pending.
	ErrRecording = errors.New("capture: already recording")
	// ErrPlaybackActive is returned by Begin when playback holds the audio token.
	ErrPlaybackActive = errors.New("capture: playback active")
	// ErrSuperseded is returned by Started for an acquisition that was released
	// or replaced before the microphone opened.
	ErrSuperseded = errors.New("capture: acquisition superseded")
	// ErrNoAudio is returned by Finalize when the encoder produced nothing.
	ErrNoAudio = errors.New("capture: no audio captured")
)

// EncoderError reports that the utterance encoder could not be started.
type EncoderError struct {
	Err error
}

func (e *EncoderError) Error() string {
	return "capture: start encoder: " + e.Err.Error()
}

func (e *EncoderError) Unwrap() error {
	return e.Err
}

// Options configures a Controller.
type Options struct {
	MinDuration time.Duration
	Constraints audio.Constraints
	// Exclusive makes Begin fail while playback holds Token.
	Exclusive bool
	Token     *audio.Token
	Now       func() time.Time
	Logger    *slog.Logger
}

func (o *Options) defaults() {
	if o.MinDuration <= 0 {
		o.MinDuration = DefaultMinDuration
	}
	if o.Constraints.SampleRate <= 0 || o.Constraints.Channels <= 0 {
		o.Constraints = audio.SpeechConstraints()
	}
	if o.Token == nil {
		o.Token = &audio.Token{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

type state int

const (
	stateIdle state = iota
	stateAcquiring
	stateRecording
)

// Acquisition is the result of opening the microphone for one Begin.
type Acquisition struct {
	ID     uint64
	Stream audio.InputStream
	Err    error
}

// OutcomeKind describes what End did.
type OutcomeKind int

const (
	// OutcomeNone means nothing was recording.
	OutcomeNone OutcomeKind = iota
	// OutcomeCancelled means release arrived before the microphone opened.
	OutcomeCancelled
	// OutcomeDiscarded means the recording was shorter than the minimum.
	OutcomeDiscarded
	// OutcomeFinalizing means the recording is being flushed into an utterance.
	OutcomeFinalizing
)

// String returns the lowercase name of the outcome.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNone:
		return "none"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Outcome is returned by End.
type Outcome struct {
	Kind    OutcomeKind
	Elapsed time.Duration

	rec *recording
}

// Finalize flushes the encoder and builds the utterance. It is only valid for
// OutcomeFinalizing and blocks, so callers run it off the event loop.
func (o Outcome) Finalize(ctx context.Context) (*Utterance, error) {
	if o.Kind != OutcomeFinalizing || o.rec == nil {
		return nil, fmt.Errorf("capture: nothing to finalize (%s)", o.Kind)
	}
	chunks, err := o.rec.session.Finish(ctx)
	if err != nil {
		return nil, fmt.Errorf("finalize utterance: %w", err)
	}
	u := &Utterance{
		ID:        o.rec.id,
		Encoding:  o.rec.encoding,
		Chunks:    chunks,
		StartedAt: o.rec.startedAt,
		Duration:  o.Elapsed,
	}
	if !u.HasAudio() {
		if pumpErr := o.rec.pumpErr(); pumpErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoAudio, pumpErr)
		}
		return nil, ErrNoAudio
	}
	return u, nil
}

// Controller coordinates microphone acquisition, encoding and the
// minimum-duration guard for one utterance at a time.
type Controller struct {
	mic  audio.Microphone
	enc  audio.Encoder
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	state    state
	seq      uint64
	pending  uint64
	rec      *recording
	encoding audio.Encoding
}

// New creates a Controller.
func New(mic audio.Microphone, enc audio.Encoder, opts Options) *Controller {
	opts.defaults()
	return &Controller{
		mic:  mic,
		enc:  enc,
		opts: opts,
		log:  opts.Logger,
	}
}

// Recording reports whether a microphone stream is open and being encoded.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateRecording
}

// Acquiring reports whether a microphone open is in flight.
func (c *Controller) Acquiring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateAcquiring
}

// Encoding returns the encoding negotiated for the last recording.
func (c *Controller) Encoding() audio.Encoding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoding
}

// MinDuration returns the configured minimum utterance length.
func (c *Controller) MinDuration() time.Duration {
	return c.opts.MinDuration
}

// Begin starts a microphone acquisition and returns its id. The caller runs
// Acquire with the id off the event loop and hands the result to Started.
func (c *Controller) Begin() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return 0, ErrRecording
	}
	if c.opts.Exclusive && !c.opts.Token.TryAcquire(audio.OwnerCapture) {
		return 0, ErrPlaybackActive
	}
	c.seq++
	c.pending = c.seq
	c.state = stateAcquiring
	c.log.Debug("microphone acquisition started", "acquisition", c.seq)
	return c.seq, nil
}

// Acquire opens the microphone. It blocks until the device answers.
func (c *Controller) Acquire(ctx context.Context, id uint64) Acquisition {
	stream, err := c.mic.Open(ctx, c.opts.Constraints)
	return Acquisition{ID: id, Stream: stream, Err: err}
}

// Started completes an acquisition. On error the controller returns to idle
// and the error is returned. A stale acquisition has its stream closed and
// ErrSuperseded is returned.
func (c *Controller) Started(a Acquisition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateAcquiring || a.ID != c.pending {
		if a.Stream != nil {
			_ = a.Stream.Close()
		}
		c.log.Debug("late microphone acquisition dropped", "acquisition", a.ID)
		return ErrSuperseded
	}
	if a.Err != nil {
		c.reset()
		return a.Err
	}

	c.encoding = audio.Negotiate(c.enc.Supports)
	session, err := c.enc.Start(c.encoding, c.opts.Constraints.Format())
	if err != nil {
		_ = a.Stream.Close()
		c.reset()
		return &EncoderError{Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recording{
		id:        uuid.New(),
		stream:    a.Stream,
		session:   session,
		encoding:  c.encoding,
		startedAt: c.opts.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go rec.pump(ctx)

	c.rec = rec
	c.state = stateRecording
	c.log.Info("recording started", "utterance", rec.id, "encoding", string(c.encoding))
	return nil
}

// End handles a release that happened at at; a zero at means now. The
// utterance is measured from the start of recording to at. The microphone is
// released in every branch.
func (c *Controller) End(at time.Time) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateAcquiring:
		c.reset()
		return Outcome{Kind: OutcomeCancelled}
	case stateRecording:
	default:
		return Outcome{Kind: OutcomeNone}
	}

	if at.IsZero() {
		at = c.opts.Now()
	}
	rec := c.rec
	elapsed := at.Sub(rec.startedAt)
	rec.stop()
	c.reset()

	if elapsed < c.opts.MinDuration {
		_ = rec.session.Abort()
		c.log.Info("recording discarded", "utterance", rec.id, "elapsed", elapsed)
		return Outcome{Kind: OutcomeDiscarded, Elapsed: elapsed}
	}
	c.log.Info("recording finished", "utterance", rec.id, "elapsed", elapsed)
	return Outcome{Kind: OutcomeFinalizing, Elapsed: elapsed, rec: rec}
}

// Abort drops any pending acquisition or recording without producing an utterance.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil {
		c.rec.stop()
		_ = c.rec.session.Abort()
	}
	c.reset()
}

func (c *Controller) reset() {
	c.rec = nil
	c.pending = 0
	c.state = stateIdle
	if c.opts.Exclusive {
		c.opts.Token.Release(audio.OwnerCapture)
	}
}

type recording struct {
	id        uuid.UUID
	stream    audio.InputStream
	session   audio.EncodeSession
	encoding  audio.Encoding
	startedAt time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error
}

// pump moves microphone frames into the encoder until cancelled or the
// stream fails.
func (r *recording) pump(ctx context.Context) {
	defer close(r.done)
	for {
		frame, err := r.stream.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.setErr(err)
			}
			return
		}
		if len(frame) == 0 {
			continue
		}
		if err := r.session.Write(frame); err != nil {
			r.setErr(err)
			return
		}
	}
}

func (r *recording) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *recording) pumpErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// stop cancels the pump, waits for it and closes the stream.
func (r *recording) stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		<-r.done
		_ = r.stream.Close()
	})
}
