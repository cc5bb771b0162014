//go:build !portaudio

package audio

import "context"

// MicrophoneBackend names the compiled-in capture backend.
const MicrophoneBackend = "none"

// NewMicrophone returns a microphone that always reports unavailable. Build
// with -tags portaudio for real capture.
func NewMicrophone() Microphone {
	return noMicrophone{}
}

type noMicrophone struct{}

func (noMicrophone) Open(context.Context, Constraints) (InputStream, error) {
	return nil, &DeviceError{Device: "microphone", Op: "open", Err: ErrMicrophoneUnavailable}
}
