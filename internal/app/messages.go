package app

import (
	"time"

	"github.com/igun997/ai-live/internal/capture"
	"github.com/igun997/ai-live/internal/conn"
	"github.com/igun997/ai-live/internal/playback"
)

// ConnectedMsg is sent when the backend connection is established.
type ConnectedMsg struct {
	Transport Transport
}

// ConnectErrorMsg is sent when the backend connection fails.
type ConnectErrorMsg struct {
	Err error
}

// ServerEventMsg wraps a structured event from the backend.
type ServerEventMsg struct {
	Event conn.Event
}

// ServerAudioMsg carries a binary reply from the backend.
type ServerAudioMsg struct {
	Data []byte
}

// MalformedFrameMsg is sent when a text frame could not be parsed.
type MalformedFrameMsg struct {
	Err error
}

// ConnClosedMsg is sent when the connection is closed by the peer or fails.
type ConnClosedMsg struct {
	Err error
}

// PressMsg is the unified start-of-gesture intent.
type PressMsg struct{}

// ReleaseMsg is the unified end-of-gesture intent.
type ReleaseMsg struct{}

// MicAcquiredMsg carries the result of opening the microphone.
type MicAcquiredMsg struct {
	Acquisition capture.Acquisition
}

// UtteranceReadyMsg carries a finalized utterance or the reason there is none.
type UtteranceReadyMsg struct {
	Utterance *capture.Utterance
	Err       error
}

// UtteranceSentMsg reports the outcome of sending an utterance.
type UtteranceSentMsg struct {
	Size     int
	Duration time.Duration
	Err      error
}

// ControlSentMsg reports the outcome of sending a control event.
type ControlSentMsg struct {
	Control conn.Control
	Err     error
}

// PlaybackDoneMsg is sent when a reply has finished playing, by any path.
type PlaybackDoneMsg struct {
	Result playback.Result
}

// OutputWarmedMsg reports the opportunistic output device warm-up.
type OutputWarmedMsg struct {
	Err error
}

// KeepaliveTickMsg triggers a ping.
type KeepaliveTickMsg struct{}

// HoldTickMsg checks whether a held talk key has been released.
type HoldTickMsg struct{}

// ClearNoticeMsg clears a transient notice after a timeout.
type ClearNoticeMsg struct {
	Seq int
}
