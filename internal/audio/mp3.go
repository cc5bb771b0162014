package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes MPEG audio replies into 16-bit stereo PCM.
type MP3Decoder struct{}

// Decode implements Decoder.
func (MP3Decoder) Decode(data []byte) (PCM, error) {
	if len(data) == 0 {
		return PCM{}, fmt.Errorf("decode mp3: empty buffer: %w", ErrUnsupported)
	}
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("decode mp3: %w: %v", ErrUnsupported, err)
	}
	out, err := io.ReadAll(d)
	if err != nil {
		return PCM{}, fmt.Errorf("decode mp3: %w", err)
	}
	if len(out) == 0 {
		return PCM{}, fmt.Errorf("decode mp3: no samples: %w", ErrUnsupported)
	}
	// go-mp3 always produces interleaved stereo.
	return PCM{Format: Format{SampleRate: d.SampleRate(), Channels: 2}, Data: out}, nil
}
