package audio

import "sync"

// Owner names a holder of the audio token.
type Owner string

const (
	OwnerNone     Owner = ""
	OwnerCapture  Owner = "capture"
	OwnerPlayback Owner = "playback"
)

// Token is the capability shared by the capture and playback controllers.
// At most one owner holds it at a time.
type Token struct {
	mu     sync.Mutex
	holder Owner
}

// TryAcquire takes the token for o. It succeeds when the token is free or
// already held by o.
func (t *Token) TryAcquire(o Owner) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.holder != OwnerNone && t.holder != o {
		return false
	}
	t.holder = o
	return true
}

// Release frees the token if o holds it.
func (t *Token) Release(o Owner) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.holder == o {
		t.holder = OwnerNone
	}
}

// Holder returns the current owner.
func (t *Token) Holder() Owner {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.holder
}
