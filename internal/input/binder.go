// Package input translates terminal key and mouse events into one press and
// one release intent per physical talk gesture.
//
// Terminals report key presses (and auto-repeat) but no key releases. In
// toggle mode the talk key starts and stops a recording. In hold mode a
// recording lasts while repeats keep arriving and is released once no repeat
// has been seen for the release gap. A mouse button press and release always
// map to a true press-and-hold.
package input

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how the talk key behaves.
type Mode string

const (
	ModeToggle Mode = "toggle"
	ModeHold   Mode = "hold"
)

// DefaultHoldReleaseGap is the silence after the last key repeat that ends a hold.
const DefaultHoldReleaseGap = 700 * time.Millisecond

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeToggle, "":
		return ModeToggle, nil
	case ModeHold:
		return ModeHold, nil
	default:
		return "", fmt.Errorf("unknown input mode %q (want toggle or hold)", s)
	}
}

// Intent is the outcome of one input event.
type Intent int

const (
	None Intent = iota
	Press
	Release
)

// String returns the lowercase name of the intent.
func (i Intent) String() string {
	switch i {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return "none"
	}
}

type source int

const (
	sourceNone source = iota
	sourceKey
	sourceMouse
)

// Binder holds the state of the current gesture.
type Binder struct {
	mode    Mode
	gap     time.Duration
	source  source
	lastKey time.Time
}

// NewBinder creates a Binder. A non-positive gap uses DefaultHoldReleaseGap.
func NewBinder(mode Mode, gap time.Duration) *Binder {
	if gap <= 0 {
		gap = DefaultHoldReleaseGap
	}
	if mode != ModeHold {
		mode = ModeToggle
	}
	return &Binder{mode: mode, gap: gap}
}

// Mode returns the configured key mode.
func (b *Binder) Mode() Mode { return b.mode }

// Gap returns the hold release gap.
func (b *Binder) Gap() time.Duration { return b.gap }

// Active reports whether a gesture is in progress.
func (b *Binder) Active() bool { return b.source != sourceNone }

// Holding reports whether a key hold is waiting for Tick to detect release.
func (b *Binder) Holding() bool {
	return b.mode == ModeHold && b.source == sourceKey
}

// Key handles the talk key, including auto-repeats.
func (b *Binder) Key(now time.Time) Intent {
	switch b.source {
	case sourceMouse:
		return None
	case sourceKey:
		if b.mode == ModeHold {
			b.lastKey = now
			return None
		}
		b.source = sourceNone
		return Release
	}
	b.source = sourceKey
	b.lastKey = now
	return Press
}

// Tick ends a key hold once no repeat has arrived for the release gap.
func (b *Binder) Tick(now time.Time) Intent {
	if !b.Holding() {
		return None
	}
	if now.Sub(b.lastKey) < b.gap {
		return None
	}
	b.source = sourceNone
	return Release
}

// LastKey returns when the talk key was last seen. After Tick reports a
// hold release this is the instant the key was actually let go.
func (b *Binder) LastKey() time.Time { return b.lastKey }

// MousePress handles a left button press.
func (b *Binder) MousePress() Intent {
	if b.source != sourceNone {
		return None
	}
	b.source = sourceMouse
	return Press
}

// MouseRelease handles a left button release.
func (b *Binder) MouseRelease() Intent {
	if b.source != sourceMouse {
		return None
	}
	b.source = sourceNone
	return Release
}

// Reset drops any gesture in progress without emitting a release.
func (b *Binder) Reset() {
	b.source = sourceNone
	b.lastKey = time.Time{}
}
