package app

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/igun997/ai-live/internal/capture"
	"github.com/igun997/ai-live/internal/conn"
	"github.com/igun997/ai-live/internal/playback"
)

const (
	noticeTimeout    = 5 * time.Second
	holdTickInterval = 100 * time.Millisecond
)

// connectCmd dials the backend once. There is no reconnect.
func connectCmd(ctx context.Context, dial Dialer) tea.Cmd {
	return func() tea.Msg {
		t, err := dial(ctx)
		if err != nil {
			return ConnectErrorMsg{Err: err}
		}
		return ConnectedMsg{Transport: t}
	}
}

// readCmd reads the next frame. It is re-armed after every frame so events
// reach Update in receipt order.
func readCmd(t Transport) tea.Cmd {
	return func() tea.Msg {
		in, err := t.Read()
		if err != nil {
			var pe *conn.ProtocolError
			if errors.As(err, &pe) {
				return MalformedFrameMsg{Err: err}
			}
			return ConnClosedMsg{Err: err}
		}
		if in.Event != nil {
			return ServerEventMsg{Event: *in.Event}
		}
		return ServerAudioMsg{Data: in.Audio}
	}
}

// acquireCmd opens the microphone for one acquisition.
func acquireCmd(ctx context.Context, c *capture.Controller, id uint64) tea.Cmd {
	return func() tea.Msg {
		return MicAcquiredMsg{Acquisition: c.Acquire(ctx, id)}
	}
}

// finalizeCmd flushes the encoder into an utterance.
func finalizeCmd(ctx context.Context, out capture.Outcome) tea.Cmd {
	return func() tea.Msg {
		u, err := out.Finalize(ctx)
		return UtteranceReadyMsg{Utterance: u, Err: err}
	}
}

// sendUtteranceCmd consumes the utterance into one binary frame.
func sendUtteranceCmd(t Transport, u *capture.Utterance) tea.Cmd {
	return func() tea.Msg {
		buf, err := u.Take()
		if err != nil {
			return UtteranceSentMsg{Err: err}
		}
		return UtteranceSentMsg{Size: len(buf), Duration: u.Duration, Err: t.Send(buf)}
	}
}

// sendControlCmd writes a control event.
func sendControlCmd(t Transport, ctl conn.Control) tea.Cmd {
	return func() tea.Msg {
		return ControlSentMsg{Control: ctl, Err: t.SendControl(ctl)}
	}
}

// playCmd renders one reply.
func playCmd(ctx context.Context, job *playback.Job) tea.Cmd {
	return func() tea.Msg {
		return PlaybackDoneMsg{Result: job.Run(ctx)}
	}
}

// warmCmd creates or resumes the output device ahead of the first reply.
func warmCmd(ctx context.Context, p *playback.Controller) tea.Cmd {
	return func() tea.Msg {
		return OutputWarmedMsg{Err: p.Warm(ctx)}
	}
}

func keepaliveCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg {
		return KeepaliveTickMsg{}
	})
}

func holdTickCmd() tea.Cmd {
	return tea.Tick(holdTickInterval, func(time.Time) tea.Msg {
		return HoldTickMsg{}
	})
}

// clearNoticeCmd fires after a delay to clear a transient notice.
func clearNoticeCmd(seq int) tea.Cmd {
	return tea.Tick(noticeTimeout, func(time.Time) tea.Msg {
		return ClearNoticeMsg{Seq: seq}
	})
}
