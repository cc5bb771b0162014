package capture

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/igun997/ai-live/internal/audio"
)

// ErrConsumed is returned by Take after the utterance has been serialized once.
var ErrConsumed = errors.New("capture: utterance already consumed")

// Utterance is one finalized recording.
type Utterance struct {
	ID        uuid.UUID
	Encoding  audio.Encoding
	Chunks    [][]byte
	StartedAt time.Time
	Duration  time.Duration

	mu    sync.Mutex
	taken bool
}

// HasAudio reports whether at least one chunk is non-empty.
func (u *Utterance) HasAudio() bool {
	for _, c := range u.Chunks {
		if len(c) > 0 {
			return true
		}
	}
	return false
}

// Size returns the total number of encoded bytes.
func (u *Utterance) Size() int {
	n := 0
	for _, c := range u.Chunks {
		n += len(c)
	}
	return n
}

// Take concatenates the chunks into one buffer and drops them. It succeeds
// exactly once.
func (u *Utterance) Take() ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.taken {
		return nil, ErrConsumed
	}
	u.taken = true
	buf := bytes.Join(u.Chunks, nil)
	u.Chunks = nil
	return buf, nil
}
