// Package audio provides the device and codec backends used by the capture and
// playback controllers: microphone input, container encoding, decoding, speaker
// output and a subprocess fallback player.
//
// Hardware backends are selected at build time. Build with -tags portaudio for
// microphone capture and -tags oto for speaker output; without the tags the
// corresponding constructors return devices that report ErrMicrophoneUnavailable
// or ErrOutputUnavailable.
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMicrophoneUnavailable is returned when no capture device can be opened.
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	// ErrOutputUnavailable is returned when no output device can be created.
	ErrOutputUnavailable = errors.New("audio output unavailable")
	// ErrUnsupported is returned when a codec or container cannot be handled.
	ErrUnsupported = errors.New("unsupported audio format")
)

// DeviceError wraps a failure from a hardware or subprocess backend.
type DeviceError struct {
	Device string // "microphone", "speaker", "ffmpeg", "ffplay"
	Op     string // "open", "start", "read", "write", "play"
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// PCM is a block of decoded audio.
type PCM struct {
	Format
	Data []byte
}

// Duration returns the playing time of the block.
func (p PCM) Duration() time.Duration {
	bps := p.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(len(p.Data)) * time.Second / time.Duration(bps)
}

// Constraints are the requested microphone properties.
type Constraints struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
}

// SpeechConstraints returns mono 16 kHz capture with echo cancellation and
// noise suppression requested.
func SpeechConstraints() Constraints {
	return Constraints{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// Format returns the PCM format the constraints ask for.
func (c Constraints) Format() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// Microphone opens capture streams.
type Microphone interface {
	Open(ctx context.Context, c Constraints) (InputStream, error)
}

// InputStream is an open capture stream. Read blocks for the next frame of PCM.
// Close releases the hardware and must be safe to call more than once.
type InputStream interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Encoder turns raw PCM into a container format.
type Encoder interface {
	Supports(enc Encoding) bool
	Start(enc Encoding, f Format) (EncodeSession, error)
}

// EncodeSession is one running encode. Chunks produced by the encoder are
// accumulated and returned by Finish.
type EncodeSession interface {
	Write(pcm []byte) error
	Finish(ctx context.Context) ([][]byte, error)
	Abort() error
}

// Decoder turns a compressed reply into PCM.
type Decoder interface {
	Decode(data []byte) (PCM, error)
}

// Output is the speaker output context. Play blocks until the block has been
// rendered or ctx is done.
type Output interface {
	Resume() error
	Play(ctx context.Context, pcm PCM) error
	Close() error
}

// FallbackPlayer plays an undecoded buffer by letting an external player
// detect the container.
type FallbackPlayer interface {
	Play(ctx context.Context, data []byte) error
}
