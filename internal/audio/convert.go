package audio

import "encoding/binary"

// Convert resamples and remixes p to the target format using linear
// interpolation. Mono is duplicated to every output channel; multi-channel
// input is averaged when the target is mono.
func Convert(p PCM, to Format) PCM {
	if p.Format == to || p.Channels <= 0 || p.SampleRate <= 0 || to.Channels <= 0 || to.SampleRate <= 0 {
		return p
	}
	frames := len(p.Data) / (2 * p.Channels)
	if frames == 0 {
		return PCM{Format: to}
	}

	src := make([][]float64, frames)
	for i := 0; i < frames; i++ {
		src[i] = make([]float64, p.Channels)
		for ch := 0; ch < p.Channels; ch++ {
			off := (i*p.Channels + ch) * 2
			src[i][ch] = float64(int16(binary.LittleEndian.Uint16(p.Data[off:])))
		}
	}

	outFrames := int(int64(frames) * int64(to.SampleRate) / int64(p.SampleRate))
	if outFrames == 0 {
		outFrames = 1
	}
	out := make([]byte, outFrames*to.Channels*2)
	ratio := float64(p.SampleRate) / float64(to.SampleRate)

	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= frames-1 {
			j = frames - 1
		}
		frac := pos - float64(j)
		next := j + 1
		if next >= frames {
			next = j
		}
		for ch := 0; ch < to.Channels; ch++ {
			v := sampleAt(src[j], ch, to.Channels)*(1-frac) + sampleAt(src[next], ch, to.Channels)*frac
			binary.LittleEndian.PutUint16(out[(i*to.Channels+ch)*2:], uint16(clamp16(v)))
		}
	}
	return PCM{Format: to, Data: out}
}

func sampleAt(frame []float64, ch, outChannels int) float64 {
	if outChannels == 1 && len(frame) > 1 {
		var sum float64
		for _, s := range frame {
			sum += s
		}
		return sum / float64(len(frame))
	}
	if ch < len(frame) {
		return frame[ch]
	}
	return frame[0]
}

func clamp16(v float64) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
