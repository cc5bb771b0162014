package input

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestToggleMode(t *testing.T) {
	b := NewBinder(ModeToggle, 0)
	if got := b.Key(t0); got != Press {
		t.Fatalf("first key = %v, want press", got)
	}
	if !b.Active() {
		t.Error("binder should be active after press")
	}
	if got := b.Key(t0.Add(2 * time.Second)); got != Release {
		t.Fatalf("second key = %v, want release", got)
	}
	if b.Active() {
		t.Error("binder should be idle after release")
	}
	if got := b.Tick(t0.Add(time.Hour)); got != None {
		t.Errorf("tick in toggle mode = %v, want none", got)
	}
}

func TestHoldModeRepeatsAreSuppressed(t *testing.T) {
	b := NewBinder(ModeHold, 500*time.Millisecond)
	if got := b.Key(t0); got != Press {
		t.Fatalf("first key = %v, want press", got)
	}
	now := t0
	for i := 0; i < 10; i++ {
		now = now.Add(30 * time.Millisecond)
		if got := b.Key(now); got != None {
			t.Fatalf("repeat %d = %v, want none", i, got)
		}
		if got := b.Tick(now.Add(100 * time.Millisecond)); got != None {
			t.Fatalf("tick during repeats = %v, want none", got)
		}
	}
	if !b.Holding() {
		t.Error("should be holding")
	}
	if got := b.Tick(now.Add(500 * time.Millisecond)); got != Release {
		t.Fatalf("tick after gap = %v, want release", got)
	}
	if !b.LastKey().Equal(now) {
		t.Errorf("LastKey = %v, want last repeat %v", b.LastKey(), now)
	}
	if got := b.Tick(now.Add(time.Second)); got != None {
		t.Errorf("second release = %v, want none", got)
	}
}

func TestMouseGesture(t *testing.T) {
	b := NewBinder(ModeToggle, 0)
	if got := b.MouseRelease(); got != None {
		t.Errorf("release without press = %v", got)
	}
	if got := b.MousePress(); got != Press {
		t.Fatalf("press = %v", got)
	}
	if got := b.MousePress(); got != None {
		t.Errorf("duplicate press = %v, want none", got)
	}
	if got := b.Key(t0); got != None {
		t.Errorf("key during mouse hold = %v, want none", got)
	}
	if got := b.MouseRelease(); got != Release {
		t.Fatalf("release = %v", got)
	}
	if got := b.MouseRelease(); got != None {
		t.Errorf("duplicate release = %v, want none", got)
	}
}

func TestMouseIgnoredDuringKeyGesture(t *testing.T) {
	b := NewBinder(ModeToggle, 0)
	b.Key(t0)
	if got := b.MousePress(); got != None {
		t.Errorf("mouse press during key gesture = %v", got)
	}
	if got := b.MouseRelease(); got != None {
		t.Errorf("mouse release during key gesture = %v", got)
	}
	if got := b.Key(t0.Add(time.Second)); got != Release {
		t.Errorf("key = %v, want release", got)
	}
}

func TestReset(t *testing.T) {
	b := NewBinder(ModeHold, 0)
	b.Key(t0)
	b.Reset()
	if b.Active() || b.Holding() {
		t.Error("reset should clear the gesture")
	}
	if got := b.Key(t0.Add(time.Second)); got != Press {
		t.Errorf("key after reset = %v, want press", got)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeToggle, "toggle": ModeToggle, " HOLD ": ModeHold} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("tap"); err == nil {
		t.Error("unknown mode should fail")
	}
}
