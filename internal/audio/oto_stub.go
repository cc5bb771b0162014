//go:build !oto

package audio

// OutputBackend names the compiled-in speaker backend.
const OutputBackend = "none"

// NewOutput reports ErrOutputUnavailable. Build with -tags oto for speaker
// output; without it replies go through the fallback player.
func NewOutput(Format) (Output, error) {
	return nil, &DeviceError{Device: "speaker", Op: "open", Err: ErrOutputUnavailable}
}
