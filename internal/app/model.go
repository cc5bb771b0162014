package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/igun997/ai-live/internal/capture"
	"github.com/igun997/ai-live/internal/conn"
	"github.com/igun997/ai-live/internal/input"
	"github.com/igun997/ai-live/internal/metrics"
	"github.com/igun997/ai-live/internal/playback"
	"github.com/igun997/ai-live/internal/session"
	"github.com/igun997/ai-live/internal/ui"
)

// Status bar texts.
const (
	StatusConnecting      = "Connecting..."
	StatusConnected       = "Connected"
	StatusDisconnected    = "Disconnected"
	StatusConnectionError = "Connection error"
)

// Indicator labels.
const (
	LabelTranscribing = "Transcribing..."
	LabelSpeaking     = "Speaking..."
	LabelSummarizing  = "Generating summary..."
)

// Notices.
const (
	NoticeNotConnected  = "Not connected"
	NoticeWaitForReply  = "Wait for the reply to finish"
	NoticeSendFailed    = "Send failed"
	micDeniedPrefix     = "Microphone access denied: "
	encoderFailedPrefix = "Cannot encode audio: "
	defaultVisibleLines = 20
)

// Transport is the backend connection as seen by the model.
type Transport interface {
	Read() (conn.Inbound, error)
	Send(data []byte) error
	SendControl(ctl conn.Control) error
	Close() error
	State() conn.State
}

// Dialer opens the backend connection.
type Dialer func(ctx context.Context) (Transport, error)

// Deps are the collaborators the model drives.
type Deps struct {
	Dial     Dialer
	Capture  *capture.Controller
	Playback *playback.Controller
	Binder   *input.Binder
	// Keepalive is the ping interval; zero disables pings.
	Keepalive time.Duration
	// Endpoint is shown while connecting.
	Endpoint string
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Model is the root bubbletea model. It owns the session and is the only
// place where session transitions happen.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	sess      *session.Session
	transport Transport
	dial      Dialer
	capture   *capture.Controller
	playback  *playback.Controller
	binder    *input.Binder
	keepalive time.Duration
	endpoint  string

	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// Status
	statusText string
	indicator  string
	spinner    spinner.Model
	spinning   bool
	warmed     bool

	// Hold-mode release detection
	holdTicking bool

	// An utterance is being finalized or sent; end_session waits for it.
	utterancePending bool
	endDeferred      bool

	// Notices
	notice          string
	noticeTransient bool
	noticeSeq       int

	// UI state
	width            int
	height           int
	transcriptScroll int
	transcriptLive   bool
}

// New creates a Model with a fresh session in the connecting state.
func New(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Binder == nil {
		deps.Binder = input.NewBinder(input.ModeToggle, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := session.New()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.SpinnerStyle

	return Model{
		ctx:            ctx,
		cancel:         cancel,
		sess:           sess,
		dial:           deps.Dial,
		capture:        deps.Capture,
		playback:       deps.Playback,
		binder:         deps.Binder,
		keepalive:      deps.Keepalive,
		endpoint:       deps.Endpoint,
		log:            deps.Logger.With(slog.String("session", sess.LocalID)),
		metrics:        deps.Metrics,
		now:            deps.Now,
		statusText:     StatusConnecting,
		spinner:        sp,
		transcriptLive: true,
	}
}

// Session returns the session owned by the model.
func (m Model) Session() *session.Session {
	return m.sess
}

// Init returns the initial command: connect to the backend.
func (m Model) Init() tea.Cmd {
	return connectCmd(m.ctx, m.dial)
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case PressMsg:
		return m.press()

	case ReleaseMsg:
		return m.release(m.now())

	case ConnectedMsg:
		if m.sess.Connection != session.Connecting {
			_ = msg.Transport.Close()
			return m, nil
		}
		m.transport = msg.Transport
		if err := m.sess.Opened(); err != nil {
			return m, nil
		}
		m.statusText = StatusConnected
		m.metrics.ConnectionOpen.Set(1)
		m.log.Info("session connected")
		cmds := []tea.Cmd{readCmd(m.transport)}
		if m.keepalive > 0 {
			cmds = append(cmds, keepaliveCmd(m.keepalive))
		}
		return m, tea.Batch(cmds...)

	case ConnectErrorMsg:
		m.sess.Closeup()
		m.statusText = StatusConnectionError
		m.log.Error("connect failed", "error", msg.Err)
		cmd := m.setNotice(msg.Err.Error(), false)
		return m, cmd

	case ServerEventMsg:
		m.metrics.ServerEvents.WithLabelValues(msg.Event.Type).Inc()
		cmd := m.handleEvent(msg.Event)
		// Continue reading frames
		return m, tea.Batch(cmd, m.nextRead())

	case ServerAudioMsg:
		cmd := m.handleAudio(msg.Data)
		return m, tea.Batch(cmd, m.nextRead())

	case MalformedFrameMsg:
		m.log.Warn("ignoring malformed frame", "error", msg.Err)
		return m, m.nextRead()

	case ConnClosedMsg:
		return m.handleClosed(msg.Err)

	case MicAcquiredMsg:
		return m.handleMicAcquired(msg.Acquisition)

	case UtteranceReadyMsg:
		return m.handleUtteranceReady(msg)

	case UtteranceSentMsg:
		m.utterancePending = false
		if msg.Err != nil {
			m.metrics.SendFailures.Inc()
			m.log.Warn("utterance send failed", "error", msg.Err)
			m.sess.Abandon()
			m.syncIndicator()
			cmd := tea.Batch(m.sendFailedNotice(msg.Err), m.flushEnd())
			return m, cmd
		}
		m.metrics.UtterancesSent.Inc()
		m.metrics.UtteranceSeconds.Observe(msg.Duration.Seconds())
		m.log.Info("utterance sent", "bytes", msg.Size, "duration", msg.Duration)
		cmd := m.flushEnd()
		return m, cmd

	case ControlSentMsg:
		if msg.Err == nil {
			return m, nil
		}
		if msg.Control.Type == conn.TypePing {
			m.log.Debug("keepalive failed", "error", msg.Err)
			return m, nil
		}
		m.metrics.SendFailures.Inc()
		m.log.Warn("control send failed", "type", msg.Control.Type, "error", msg.Err)
		if msg.Control.Type == conn.TypeEndSession {
			m.sess.CancelSummary()
			m.hideIndicator()
		}
		cmd := m.sendFailedNotice(msg.Err)
		return m, cmd

	case PlaybackDoneMsg:
		return m.handlePlaybackDone(msg.Result)

	case OutputWarmedMsg:
		if msg.Err != nil {
			m.log.Debug("audio output warm-up failed", "error", msg.Err)
		}
		return m, nil

	case KeepaliveTickMsg:
		if m.transport == nil || m.sess.Connection != session.Open || m.sess.Summarized() {
			return m, nil
		}
		return m, tea.Batch(sendControlCmd(m.transport, conn.Ping()), keepaliveCmd(m.keepalive))

	case HoldTickMsg:
		m.holdTicking = false
		if m.binder.Tick(m.now()) == input.Release {
			return m.release(m.binder.LastKey())
		}
		if m.binder.Holding() {
			m.holdTicking = true
			return m, holdTickCmd()
		}
		return m, nil

	case spinner.TickMsg:
		if m.indicator == "" {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ClearNoticeMsg:
		if m.noticeTransient && msg.Seq == m.noticeSeq {
			m.notice = ""
			m.noticeTransient = false
		}
		return m, nil
	}

	return m, nil
}

func (m Model) nextRead() tea.Cmd {
	if m.transport == nil || m.sess.Connection != session.Open {
		return nil
	}
	return readCmd(m.transport)
}

// handleEvent applies one structured event to the session.
func (m *Model) handleEvent(ev conn.Event) tea.Cmd {
	log := m.log.With(slog.String("event", ev.Type))
	switch ev.Type {
	case conn.TypeSessionStart:
		m.sess.Started(ev.SessionID)
		m.log = m.log.With(slog.String("server_session", m.sess.ID))
		log.Info("session started", "server_session", ev.SessionID)

	case conn.TypeTranscription:
		heard, err := m.sess.Transcribed(ev.Text, ev.Language)
		if err != nil {
			log.Debug("transcription ignored", "error", err)
			return nil
		}
		if !heard {
			log.Info("nothing was heard")
			m.syncIndicator()
			return nil
		}
		m.followTranscript()

	case conn.TypeResponse:
		if err := m.sess.Responded(ev.Text); err != nil {
			log.Debug("response ignored", "error", err)
			return nil
		}
		m.followTranscript()
		if m.sess.Activity == session.Speaking {
			return m.showIndicator(LabelSpeaking)
		}

	case conn.TypeSummary:
		if err := m.sess.Summarize(summaryFromEvent(ev, m.sess)); err != nil {
			log.Debug("summary ignored", "error", err)
			return nil
		}
		m.hideIndicator()
		m.binder.Reset()
		if m.capture != nil {
			m.capture.Abort()
		}
		log.Info("session summarized", "turns", m.sess.Summary.TurnCount)

	case conn.TypeError:
		if err := m.sess.Failed(ev.Message); err != nil {
			return nil
		}
		log.Warn("backend error", "message", ev.Message)
		if m.sess.Activity == session.Speaking && (m.playback == nil || !m.playback.Active()) {
			m.sess.PlaybackEnded()
		}
		m.syncIndicator()
		m.followTranscript()

	case conn.TypePong:

	default:
		log.Debug("unknown event type")
	}
	return nil
}

func summaryFromEvent(ev conn.Event, s *session.Session) session.Summary {
	sum := session.Summary{
		Text:          strings.TrimSpace(ev.Summary),
		LanguagesUsed: ev.LanguagesUsed,
	}
	if ev.Sentiment != nil {
		sum.Sentiment = session.Sentiment{
			Overall: ev.Sentiment.Overall,
			Score:   ev.Sentiment.Score,
			Details: ev.Sentiment.Details,
		}
	}
	if ev.TurnCount != nil {
		sum.TurnCount = *ev.TurnCount
	} else {
		sum.TurnCount = s.Transcript.Count(session.User)
	}
	return sum
}

func (m *Model) handleAudio(data []byte) tea.Cmd {
	if m.sess.Summarized() {
		m.log.Debug("audio after summary ignored", "bytes", len(data))
		return nil
	}
	if m.playback == nil {
		m.sess.PlaybackEnded()
		m.syncIndicator()
		return nil
	}
	job := m.playback.Start(data)
	m.log.Debug("reply audio received", "bytes", len(data), "playback", job.ID)
	return playCmd(m.ctx, job)
}

func (m Model) handlePlaybackDone(res playback.Result) (tea.Model, tea.Cmd) {
	m.playback.Finish(res)
	m.metrics.Playbacks.WithLabelValues(string(res.Path)).Inc()
	switch {
	case res.Err != nil:
		m.log.Error("reply could not be played", "playback", res.ID, "error", res.Err)
	case res.Cause != nil:
		m.log.Info("reply played by fallback", "playback", res.ID, "cause", res.Cause)
	default:
		m.log.Debug("reply played", "playback", res.ID, "duration", res.Duration)
	}
	if m.playback.Active() {
		return m, nil
	}
	if m.sess.PlaybackEnded() {
		m.hideIndicator()
	}
	return m, nil
}

func (m Model) handleClosed(err error) (tea.Model, tea.Cmd) {
	wasOpen := m.sess.Connection == session.Open
	m.sess.Closeup()
	m.endDeferred = false
	m.metrics.ConnectionOpen.Set(0)
	if m.capture != nil {
		m.capture.Abort()
	}
	m.binder.Reset()
	m.syncIndicator()
	if m.transport != nil {
		_ = m.transport.Close()
	}
	if conn.NormalClosure(err) || m.sess.Summarized() {
		m.statusText = StatusDisconnected
		m.log.Info("connection closed", "error", err)
	} else {
		m.statusText = StatusConnectionError
		m.log.Error("connection lost", "error", err)
	}
	if wasOpen && !m.sess.Summarized() && m.statusText == StatusConnectionError {
		cmd := m.setNotice("Connection lost", false)
		return m, cmd
	}
	return m, nil
}

// press handles the start-of-gesture intent.
func (m Model) press() (tea.Model, tea.Cmd) {
	if m.sess.Summarized() {
		m.binder.Reset()
		return m, nil
	}
	if !m.sess.Interactive() {
		m.binder.Reset()
		if m.sess.Connection == session.Closed {
			cmd := m.setNotice(NoticeNotConnected, true)
			return m, cmd
		}
		return m, nil
	}
	if !m.sess.CanRecord() || m.capture == nil {
		m.binder.Reset()
		return m, nil
	}

	id, err := m.capture.Begin()
	switch {
	case errors.Is(err, capture.ErrPlaybackActive):
		m.binder.Reset()
		cmd := m.setNotice(NoticeWaitForReply, true)
		return m, cmd
	case err != nil:
		m.log.Debug("press ignored", "error", err)
		return m, nil
	}

	cmds := []tea.Cmd{acquireCmd(m.ctx, m.capture, id)}
	if !m.warmed && m.playback != nil {
		m.warmed = true
		cmds = append(cmds, warmCmd(m.ctx, m.playback))
	}
	if m.binder.Holding() && !m.holdTicking {
		m.holdTicking = true
		cmds = append(cmds, holdTickCmd())
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleMicAcquired(a capture.Acquisition) (tea.Model, tea.Cmd) {
	err := m.capture.Started(a)
	var encErr *capture.EncoderError
	switch {
	case errors.Is(err, capture.ErrSuperseded):
		return m, nil
	case errors.As(err, &encErr):
		m.log.Error("encoder unavailable", "error", err)
		m.binder.Reset()
		m.sess.Notify(encoderFailedPrefix + encErr.Err.Error())
		m.followTranscript()
		return m, nil
	case err != nil:
		m.log.Warn("microphone unavailable", "error", err)
		m.binder.Reset()
		m.sess.Notify(micDeniedPrefix + err.Error())
		m.followTranscript()
		return m, nil
	}
	if err := m.sess.BeginRecording(); err != nil {
		m.log.Debug("recording no longer allowed", "error", err)
		m.capture.Abort()
		m.binder.Reset()
		return m, nil
	}
	return m, nil
}

// release handles the end-of-gesture intent for a gesture that ended at at.
func (m Model) release(at time.Time) (tea.Model, tea.Cmd) {
	if m.capture == nil {
		return m, nil
	}
	out := m.capture.End(at)
	switch out.Kind {
	case capture.OutcomeNone, capture.OutcomeCancelled:
		return m, nil
	case capture.OutcomeDiscarded:
		m.metrics.UtterancesDiscarded.Inc()
		_ = m.sess.FinishRecording(false)
		return m, nil
	}
	if err := m.sess.FinishRecording(true); err != nil {
		m.log.Debug("release outside recording", "error", err)
		return m, nil
	}
	m.utterancePending = true
	cmd := tea.Batch(m.showIndicator(LabelTranscribing), finalizeCmd(m.ctx, out))
	return m, cmd
}

func (m Model) handleUtteranceReady(msg UtteranceReadyMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.utterancePending = false
		m.metrics.UtterancesDiscarded.Inc()
		if errors.Is(msg.Err, capture.ErrNoAudio) {
			m.log.Info("empty utterance dropped")
		} else {
			m.log.Warn("utterance could not be finalized", "error", msg.Err)
		}
		m.sess.Abandon()
		m.syncIndicator()
		cmd := m.flushEnd()
		return m, cmd
	}
	if m.transport == nil || m.sess.Connection != session.Open {
		m.utterancePending = false
		m.endDeferred = false
		m.metrics.SendFailures.Inc()
		m.log.Warn("utterance dropped, not connected")
		m.sess.Abandon()
		m.syncIndicator()
		cmd := m.setNotice(NoticeNotConnected, true)
		return m, cmd
	}
	return m, sendUtteranceCmd(m.transport, msg.Utterance)
}

// endSession sends end_session and waits for the summary.
func (m Model) endSession() (tea.Model, tea.Cmd) {
	if m.sess.Summarized() {
		return m, nil
	}
	if m.transport == nil || m.sess.Connection != session.Open {
		cmd := m.setNotice(NoticeNotConnected, true)
		return m, cmd
	}
	if err := m.sess.RequestSummary(); err != nil {
		m.log.Debug("end session ignored", "error", err)
		return m, nil
	}
	if m.utterancePending {
		m.endDeferred = true
		m.log.Info("end session requested, waiting for the utterance to be sent")
		cmd := m.showIndicator(LabelSummarizing)
		return m, cmd
	}
	m.log.Info("end session requested")
	cmd := tea.Batch(m.showIndicator(LabelSummarizing), sendControlCmd(m.transport, conn.EndSession()))
	return m, cmd
}

// flushEnd sends an end_session that was held back behind an utterance.
func (m *Model) flushEnd() tea.Cmd {
	if !m.endDeferred {
		return nil
	}
	m.endDeferred = false
	if m.transport == nil || m.sess.Connection != session.Open || m.sess.Summarized() {
		return nil
	}
	m.log.Info("end session sent")
	return sendControlCmd(m.transport, conn.EndSession())
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.capture != nil {
		m.capture.Abort()
	}
	if m.transport != nil {
		_ = m.transport.Close()
	}
	m.cancel()
	if m.playback != nil {
		_ = m.playback.Close()
	}
	return m, tea.Quit
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		return m.quit()

	case KeyTalk:
		if !m.sess.Interactive() && !m.binder.Active() {
			return m.press()
		}
		switch m.binder.Key(m.now()) {
		case input.Press:
			return m.press()
		case input.Release:
			return m.release(m.now())
		}
		return m, nil

	case KeyEnd, KeyEndUpper:
		return m.endSession()

	case KeyUp, KeyK:
		m.transcriptLive = false
		if m.transcriptScroll > 0 {
			m.transcriptScroll--
		}
		return m, nil

	case KeyDown, KeyJ:
		maxScroll := m.maxTranscriptScroll()
		m.transcriptScroll++
		if m.transcriptScroll >= maxScroll {
			m.transcriptScroll = maxScroll
			m.transcriptLive = true
		}
		return m, nil

	case KeyLiveFollow:
		m.transcriptLive = true
		m.followTranscript()
		return m, nil
	}

	return m, nil
}

// handleMouse maps left button press and release to one gesture.
func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return m, nil
		}
		if m.binder.MousePress() == input.Press {
			return m.press()
		}
	case tea.MouseActionRelease:
		if m.binder.MouseRelease() == input.Release {
			return m.release(m.now())
		}
	}
	return m, nil
}

func (m *Model) showIndicator(label string) tea.Cmd {
	m.indicator = label
	if m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m *Model) hideIndicator() {
	m.indicator = ""
}

// syncIndicator hides the indicator once the session has nothing in flight.
func (m *Model) syncIndicator() {
	if m.sess.Summarized() || m.sess.Connection == session.Closed || m.sess.Activity == session.Idle {
		m.hideIndicator()
	}
}

func (m *Model) setNotice(text string, transient bool) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	m.noticeTransient = transient
	if !transient {
		return nil
	}
	return clearNoticeCmd(m.noticeSeq)
}

func (m *Model) sendFailedNotice(err error) tea.Cmd {
	if errors.Is(err, conn.ErrNotConnected) {
		return m.setNotice(NoticeNotConnected, true)
	}
	return m.setNotice(NoticeSendFailed+": "+err.Error(), true)
}

func (m *Model) followTranscript() {
	if m.transcriptLive {
		m.transcriptScroll = m.maxTranscriptScroll()
	}
}
