//go:build oto

package audio

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OutputBackend names the compiled-in speaker backend.
const OutputBackend = "oto"

const playPollInterval = 20 * time.Millisecond

// NewOutput creates the oto speaker context. oto allows one context per
// process, so callers create it once and keep it.
func NewOutput(f Format) (Output, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   f.SampleRate,
		ChannelCount: f.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, &DeviceError{Device: "speaker", Op: "open", Err: err}
	}
	<-ready
	return &otoOutput{ctx: ctx, format: f}, nil
}

type otoOutput struct {
	mu     sync.Mutex
	ctx    *oto.Context
	format Format
}

func (o *otoOutput) Resume() error {
	if err := o.ctx.Resume(); err != nil {
		return &DeviceError{Device: "speaker", Op: "resume", Err: err}
	}
	return nil
}

// Play renders pcm and waits until the player drains or ctx is done.
func (o *otoOutput) Play(ctx context.Context, pcm PCM) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	data := Convert(pcm, o.format).Data
	player := o.ctx.NewPlayer(bytes.NewReader(data))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(playPollInterval)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if err := player.Err(); err != nil {
		return &DeviceError{Device: "speaker", Op: "play", Err: err}
	}
	return nil
}

// Close suspends the context. The context itself lives until process exit.
func (o *otoOutput) Close() error {
	return o.ctx.Suspend()
}
