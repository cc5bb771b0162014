//go:build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// MicrophoneBackend names the compiled-in capture backend.
const MicrophoneBackend = "portaudio"

// framesPerBuffer is 100ms at 16 kHz.
const framesPerBuffer = 1600

// NewMicrophone returns the PortAudio default input device.
func NewMicrophone() Microphone {
	return portaudioMicrophone{}
}

type portaudioMicrophone struct{}

// Open initializes PortAudio and starts a blocking input stream. PortAudio
// has no echo cancellation or noise suppression, so those constraints are
// accepted and not applied.
func (portaudioMicrophone) Open(ctx context.Context, c Constraints) (InputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, &DeviceError{Device: "microphone", Op: "open", Err: fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)}
	}
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}
	rate := c.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	in := make([]int16, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(rate), framesPerBuffer, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, &DeviceError{Device: "microphone", Op: "open", Err: fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)}
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, &DeviceError{Device: "microphone", Op: "start", Err: err}
	}
	return &portaudioStream{stream: stream, in: in}, nil
}

type portaudioStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	in     []int16
	closed bool
}

func (s *portaudioStream) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &DeviceError{Device: "microphone", Op: "read", Err: ErrMicrophoneUnavailable}
	}
	if err := s.stream.Read(); err != nil {
		return nil, &DeviceError{Device: "microphone", Op: "read", Err: err}
	}
	out := make([]byte, len(s.in)*2)
	for i, v := range s.in {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out, nil
}

func (s *portaudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Stop()
	err := s.stream.Close()
	_ = portaudio.Terminate()
	return err
}
