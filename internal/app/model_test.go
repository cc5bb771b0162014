package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/igun997/ai-live/internal/audio"
	"github.com/igun997/ai-live/internal/capture"
	"github.com/igun997/ai-live/internal/conn"
	"github.com/igun997/ai-live/internal/input"
	"github.com/igun997/ai-live/internal/metrics"
	"github.com/igun997/ai-live/internal/playback"
	"github.com/igun997/ai-live/internal/session"
)

// Fakes

type fakeTransport struct {
	mu        sync.Mutex
	state     conn.State
	binary    [][]byte
	controls  []conn.Control
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{state: conn.StateOpen, closed: make(chan struct{})}
}

func (f *fakeTransport) Read() (conn.Inbound, error) {
	<-f.closed
	return conn.Inbound{}, &websocket.CloseError{Code: websocket.CloseNormalClosure}
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != conn.StateOpen {
		return conn.ErrNotConnected
	}
	f.binary = append(f.binary, data)
	return nil
}

func (f *fakeTransport) SendControl(ctl conn.Control) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != conn.StateOpen {
		return conn.ErrNotConnected
	}
	f.controls = append(f.controls, ctl)
	return nil
}

func (f *fakeTransport) Close() error {
	f.setState(conn.StateClosed)
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) State() conn.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) setState(s conn.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeTransport) sent() ([][]byte, []conn.Control) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.binary...), append([]conn.Control(nil), f.controls...)
}

type fakeStream struct {
	mu     sync.Mutex
	closed int
}

func (s *fakeStream) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
	}
	return []byte{0, 0, 1, 0}, nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeStream) closedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeMic struct {
	mu      sync.Mutex
	err     error
	opened  int
	streams []*fakeStream
}

func (m *fakeMic) Open(context.Context, audio.Constraints) (audio.InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
	if m.err != nil {
		return nil, m.err
	}
	s := &fakeStream{}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *fakeMic) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

func (m *fakeMic) last() *fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[len(m.streams)-1]
}

type fakeEncoder struct {
	err error
}

func (*fakeEncoder) Supports(enc audio.Encoding) bool { return enc == audio.EncodingWebM }

func (e *fakeEncoder) Start(audio.Encoding, audio.Format) (audio.EncodeSession, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &fakeEncodeSession{}, nil
}

type fakeEncodeSession struct{}

func (*fakeEncodeSession) Write([]byte) error { return nil }

func (*fakeEncodeSession) Finish(context.Context) ([][]byte, error) {
	return [][]byte{[]byte("webm-"), []byte("utterance")}, nil
}

func (*fakeEncodeSession) Abort() error { return nil }

type fakeDecoder struct {
	err error
}

func (d *fakeDecoder) Decode([]byte) (audio.PCM, error) {
	if d.err != nil {
		return audio.PCM{}, d.err
	}
	return audio.PCM{Format: audio.Format{SampleRate: 24000, Channels: 2}, Data: make([]byte, 96)}, nil
}

type fakeOutput struct{}

func (fakeOutput) Resume() error                        { return nil }
func (fakeOutput) Play(context.Context, audio.PCM) error { return nil }
func (fakeOutput) Close() error                         { return nil }

type fakeFallback struct {
	mu     sync.Mutex
	err    error
	played int
}

func (f *fakeFallback) Play(context.Context, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played++
	return f.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Harness

type rig struct {
	clock    *clock
	tr       *fakeTransport
	mic      *fakeMic
	enc      *fakeEncoder
	dec      *fakeDecoder
	fallback *fakeFallback
	token    *audio.Token
	metrics  *metrics.Metrics
}

func newRig(t *testing.T, mode input.Mode) (*rig, Model) {
	t.Helper()
	r := &rig{
		clock:    &clock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)},
		tr:       newFakeTransport(),
		mic:      &fakeMic{},
		enc:      &fakeEncoder{},
		dec:      &fakeDecoder{},
		fallback: &fakeFallback{},
		token:    &audio.Token{},
		metrics:  metrics.New(),
	}
	t.Cleanup(func() { _ = r.tr.Close() })

	m := New(Deps{
		Dial: func(context.Context) (Transport, error) { return r.tr, nil },
		Capture: capture.New(r.mic, r.enc, capture.Options{
			Exclusive: true,
			Token:     r.token,
			Now:       r.clock.Now,
		}),
		Playback: playback.New(r.dec, r.fallback, playback.Options{
			NewOutput: func() (audio.Output, error) { return fakeOutput{}, nil },
			Token:     r.token,
		}),
		Binder:    input.NewBinder(mode, 0),
		Keepalive: time.Hour,
		Metrics:   r.metrics,
		Now:       r.clock.Now,
	})
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return r, m
}

// connectedRig returns a model with an open connection and a server session.
func connectedRig(t *testing.T, mode input.Mode) (*rig, Model) {
	t.Helper()
	r, m := newRig(t, mode)
	m = run(t, m, m.Init())
	if m.sess.Connection != session.Open {
		t.Fatalf("connection = %v, want open", m.sess.Connection)
	}
	m = event(t, m, conn.Event{Type: conn.TypeSessionStart, SessionID: "sess-1"})
	return r, m
}

const cmdTimeout = 80 * time.Millisecond

// execCmd runs cmd and any batched commands concurrently. Commands that are
// still blocked at the deadline (pending reads, timers) are dropped.
func execCmd(ctx context.Context, cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()

	select {
	case msg := <-ch:
		switch msg := msg.(type) {
		case nil:
			return nil
		case tea.BatchMsg:
			results := make([][]tea.Msg, len(msg))
			var wg sync.WaitGroup
			for i, c := range msg {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results[i] = execCmd(ctx, c)
				}()
			}
			wg.Wait()
			var out []tea.Msg
			for _, r := range results {
				out = append(out, r...)
			}
			return out
		}
		return []tea.Msg{msg}
	case <-ctx.Done():
		return nil
	}
}

func ignored(msg tea.Msg) bool {
	switch msg.(type) {
	case spinner.TickMsg, KeepaliveTickMsg, HoldTickMsg, ClearNoticeMsg, tea.QuitMsg:
		return true
	}
	return false
}

// run feeds every message produced by cmd back into the model until nothing is left.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	msgs := execCmd(ctx, cmd)
	cancel()
	for _, msg := range msgs {
		if ignored(msg) {
			continue
		}
		updated, next := m.Update(msg)
		m = run(t, updated.(Model), next)
	}
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, _ := m.Update(msg)
	return updated.(Model)
}

func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, cmd := m.Update(msg)
	return run(t, updated.(Model), cmd)
}

func event(t *testing.T, m Model, ev conn.Event) Model {
	t.Helper()
	return send(t, m, ServerEventMsg{Event: ev})
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// talk records for d in toggle mode.
func talk(t *testing.T, r *rig, m Model, d time.Duration) Model {
	t.Helper()
	m = send(t, m, key(KeyTalk))
	if m.sess.Activity != session.Recording {
		t.Fatalf("activity = %v after press, want recording", m.sess.Activity)
	}
	r.clock.Advance(d)
	return send(t, m, key(KeyTalk))
}

// Tests

func TestNewModel(t *testing.T) {
	m := New(Deps{})
	if m.statusText != StatusConnecting {
		t.Errorf("statusText = %q, want %q", m.statusText, StatusConnecting)
	}
	if m.sess.Status() != session.StatusConnecting {
		t.Errorf("status = %v", m.sess.Status())
	}
	if !m.transcriptLive {
		t.Error("new model should be in live mode")
	}
	if m.indicator != "" {
		t.Errorf("indicator = %q, want hidden", m.indicator)
	}
}

func TestConnectError(t *testing.T) {
	m := New(Deps{Dial: func(context.Context) (Transport, error) {
		return nil, errors.New("connection refused")
	}})
	m = run(t, m, m.Init())

	if m.sess.Connection != session.Closed {
		t.Errorf("connection = %v, want closed", m.sess.Connection)
	}
	if m.statusText != StatusConnectionError {
		t.Errorf("statusText = %q", m.statusText)
	}
	if !strings.Contains(m.notice, "connection refused") {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestConnectedAndSessionStart(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)

	if m.statusText != StatusConnected {
		t.Errorf("statusText = %q", m.statusText)
	}
	if m.sess.ID != "sess-1" {
		t.Errorf("session id = %q", m.sess.ID)
	}
	if got := testutil.ToFloat64(r.metrics.ConnectionOpen); got != 1 {
		t.Errorf("connection gauge = %v", got)
	}
	if !strings.Contains(m.View(), "sess-1") {
		t.Error("header should show the server session id")
	}
}

func TestLongPressFullTurn(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)

	m = talk(t, r, m, 2*time.Second)

	binary, _ := r.tr.sent()
	if len(binary) != 1 {
		t.Fatalf("binary frames = %d, want 1", len(binary))
	}
	if string(binary[0]) != "webm-utterance" {
		t.Errorf("frame = %q", binary[0])
	}
	if m.sess.Activity != session.Processing {
		t.Errorf("activity = %v, want processing", m.sess.Activity)
	}
	if m.indicator != LabelTranscribing {
		t.Errorf("indicator = %q", m.indicator)
	}
	if r.mic.last().closedCount() == 0 {
		t.Error("microphone should be released after the utterance")
	}
	if got := testutil.ToFloat64(r.metrics.UtterancesSent); got != 1 {
		t.Errorf("utterances sent = %v", got)
	}

	m = event(t, m, conn.Event{Type: conn.TypeTranscription, Text: "Hello there", Language: "en"})
	turns := m.sess.Transcript.Turns()
	if len(turns) != 1 || turns[0].Speaker != session.User || turns[0].LanguageTag() != "EN" {
		t.Fatalf("turns = %+v", turns)
	}
	if m.sess.Activity != session.Processing {
		t.Errorf("activity = %v, want processing until the response", m.sess.Activity)
	}

	m = event(t, m, conn.Event{Type: conn.TypeResponse, Text: "Hi! How can I help?"})
	if m.sess.Activity != session.Speaking {
		t.Errorf("activity = %v, want speaking", m.sess.Activity)
	}
	if m.indicator != LabelSpeaking {
		t.Errorf("indicator = %q", m.indicator)
	}
	if m.sess.Transcript.Count(session.Agent) != 1 {
		t.Errorf("agent turns = %d", m.sess.Transcript.Count(session.Agent))
	}

	m = send(t, m, ServerAudioMsg{Data: []byte("ID3mp3")})
	if m.sess.Activity != session.Idle {
		t.Errorf("activity = %v after playback, want idle", m.sess.Activity)
	}
	if m.indicator != "" {
		t.Errorf("indicator = %q, want hidden", m.indicator)
	}
	if r.token.Holder() != audio.OwnerNone {
		t.Errorf("token holder = %q after playback", r.token.Holder())
	}
	if got := testutil.ToFloat64(r.metrics.Playbacks.WithLabelValues("primary")); got != 1 {
		t.Errorf("primary playbacks = %v", got)
	}
}

func TestShortPressDiscards(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)

	m = talk(t, r, m, 200*time.Millisecond)

	binary, _ := r.tr.sent()
	if len(binary) != 0 {
		t.Errorf("binary frames = %d, want 0", len(binary))
	}
	if m.sess.Activity != session.Idle {
		t.Errorf("activity = %v, want idle", m.sess.Activity)
	}
	if r.mic.last().closedCount() == 0 {
		t.Error("microphone should be released")
	}
	if r.token.Holder() != audio.OwnerNone {
		t.Errorf("token holder = %q", r.token.Holder())
	}
	if m.indicator != "" {
		t.Errorf("indicator = %q", m.indicator)
	}
	if got := testutil.ToFloat64(r.metrics.UtterancesDiscarded); got != 1 {
		t.Errorf("discarded = %v", got)
	}
}

func TestEmptyTranscriptionHidesIndicator(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	m = talk(t, r, m, time.Second)

	m = event(t, m, conn.Event{Type: conn.TypeTranscription, Text: "   "})

	if m.sess.Transcript.Len() != 0 {
		t.Errorf("transcript len = %d, want 0", m.sess.Transcript.Len())
	}
	if m.indicator != "" {
		t.Errorf("indicator = %q, want hidden", m.indicator)
	}
	if m.sess.Activity != session.Idle {
		t.Errorf("activity = %v", m.sess.Activity)
	}
}

func TestEndSessionSummary(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	m = talk(t, r, m, time.Second)
	m = event(t, m, conn.Event{Type: conn.TypeTranscription, Text: "Hola", Language: "es"})
	m = event(t, m, conn.Event{Type: conn.TypeResponse, Text: "Hola!"})
	m = send(t, m, ServerAudioMsg{Data: []byte("mp3")})

	m = send(t, m, key(KeyEnd))
	_, controls := r.tr.sent()
	if len(controls) != 1 || controls[0].Type != conn.TypeEndSession {
		t.Fatalf("controls = %+v", controls)
	}
	if m.indicator != LabelSummarizing {
		t.Errorf("indicator = %q", m.indicator)
	}
	if !m.sess.AwaitingSummary() {
		t.Error("should await the summary")
	}

	score := 0.8
	m = event(t, m, conn.Event{
		Type:          conn.TypeSummary,
		Summary:       "A short greeting in Spanish.",
		Sentiment:     &conn.Sentiment{Overall: "positive", Score: &score, Details: "Friendly."},
		LanguagesUsed: []string{"es"},
	})

	if !m.sess.Summarized() {
		t.Fatal("session should be summarized")
	}
	if m.sess.Summary.TurnCount != 1 {
		t.Errorf("turn count = %d, want the user turn count", m.sess.Summary.TurnCount)
	}
	if m.indicator != "" {
		t.Errorf("indicator = %q", m.indicator)
	}

	opened := r.mic.openCount()
	m = send(t, m, key(KeyTalk))
	if r.mic.openCount() != opened {
		t.Error("press after summary should be ignored")
	}

	view := m.View()
	for _, want := range []string{"CONVERSATION SUMMARY", "positive", "0.80", "Turns: 1", "ES"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "End session") {
		t.Error("live controls should be hidden after the summary")
	}

	m = send(t, m, ConnClosedMsg{Err: errors.New("eof")})
	if m.sess.Status() != session.StatusSummarized {
		t.Errorf("status = %v, want summarized", m.sess.Status())
	}
	if m.statusText != StatusDisconnected {
		t.Errorf("statusText = %q", m.statusText)
	}
}

func TestSummaryUsesServerTurnCount(t *testing.T) {
	_, m := connectedRig(t, input.ModeToggle)
	m = send(t, m, key(KeyEnd))

	n := 7
	m = event(t, m, conn.Event{Type: conn.TypeSummary, Summary: "done", TurnCount: &n})
	if m.sess.Summary.TurnCount != 7 {
		t.Errorf("turn count = %d, want 7", m.sess.Summary.TurnCount)
	}
}

func TestEndSessionWhileClosed(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	m = send(t, m, ConnClosedMsg{Err: errors.New("connection reset")})

	m = send(t, m, key(KeyEnd))

	if m.notice != NoticeNotConnected {
		t.Errorf("notice = %q", m.notice)
	}
	if _, controls := r.tr.sent(); len(controls) != 0 {
		t.Errorf("controls = %+v, want none", controls)
	}
}

func TestSendFailureShowsNotConnected(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)

	m = send(t, m, key(KeyTalk))
	r.tr.setState(conn.StateClosed)
	r.clock.Advance(time.Second)
	m = send(t, m, key(KeyTalk))

	if m.notice != NoticeNotConnected {
		t.Errorf("notice = %q", m.notice)
	}
	if m.sess.Activity != session.Idle {
		t.Errorf("activity = %v", m.sess.Activity)
	}
	if m.indicator != "" {
		t.Errorf("indicator = %q", m.indicator)
	}
	if got := testutil.ToFloat64(r.metrics.SendFailures); got != 1 {
		t.Errorf("send failures = %v", got)
	}
}

func TestDecodeFailureUsesFallback(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	r.dec.err = errors.New("not mp3")
	m = talk(t, r, m, time.Second)
	m = event(t, m, conn.Event{Type: conn.TypeResponse, Text: "ok"})

	m = send(t, m, ServerAudioMsg{Data: []byte("ogg")})

	if r.fallback.played != 1 {
		t.Errorf("fallback plays = %d", r.fallback.played)
	}
	if m.indicator != "" {
		t.Errorf("indicator = %q", m.indicator)
	}
	if m.sess.Activity != session.Idle {
		t.Errorf("activity = %v", m.sess.Activity)
	}
}

func TestDecodeAndFallbackFailureHidesIndicator(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	r.dec.err = errors.New("not mp3")
	r.fallback.err = errors.New("ffplay missing")
	m = talk(t, r, m, time.Second)
	m = event(t, m, conn.Event{Type: conn.TypeResponse, Text: "ok"})

	m = send(t, m, ServerAudioMsg{Data: []byte("garbage")})

	if m.indicator != "" {
		t.Errorf("indicator = %q, want hidden", m.indicator)
	}
	if m.sess.Activity != session.Idle {
		t.Errorf("activity = %v", m.sess.Activity)
	}
	if r.token.Holder() != audio.OwnerNone {
		t.Errorf("token holder = %q", r.token.Holder())
	}
	if got := testutil.ToFloat64(r.metrics.Playbacks.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed playbacks = %v", got)
	}
}

func TestMicDeniedAddsNotice(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	r.mic.err = &audio.DeviceError{Device: "microphone", Op: "open", Err: audio.ErrMicrophoneUnavailable}

	m = send(t, m, key(KeyTalk))

	last, ok := m.sess.Transcript.Last()
	if !ok || last.Kind != session.KindNotice || !strings.HasPrefix(last.Text, micDeniedPrefix) {
		t.Fatalf("last turn = %+v", last)
	}
	if m.sess.Activity != session.Idle {
		t.Errorf("activity = %v", m.sess.Activity)
	}
	if r.token.Holder() != audio.OwnerNone {
		t.Errorf("token holder = %q", r.token.Holder())
	}

	// A later press retries.
	r.mic.err = nil
	m = send(t, m, key(KeyTalk))
	if r.mic.openCount() != 2 {
		t.Errorf("mic opens = %d, want 2", r.mic.openCount())
	}
	if m.sess.Activity != session.Recording {
		t.Errorf("activity = %v, want recording", m.sess.Activity)
	}
}

func TestErrorEvent(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	m = talk(t, r, m, time.Second)

	m = event(t, m, conn.Event{Type: conn.TypeError, Message: "transcription failed"})

	last, _ := m.sess.Transcript.Last()
	if last.Kind != session.KindError || last.Text != "transcription failed" {
		t.Errorf("last turn = %+v", last)
	}
	if m.sess.Activity != session.Idle {
		t.Errorf("activity = %v", m.sess.Activity)
	}
	if m.indicator != "" {
		t.Errorf("indicator = %q", m.indicator)
	}
}

func TestErrorWhileSummarizingKeepsWaiting(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	m = send(t, m, key(KeyEnd))

	m = event(t, m, conn.Event{Type: conn.TypeError, Message: "summary failed once"})

	if !m.sess.AwaitingSummary() {
		t.Error("should still await the summary")
	}
	if m.indicator != LabelSummarizing {
		t.Errorf("indicator = %q", m.indicator)
	}
	opened := r.mic.openCount()
	m = send(t, m, key(KeyTalk))
	m = send(t, m, key(KeyEnd))
	if r.mic.openCount() != opened {
		t.Error("press while summarizing should not open the microphone")
	}
	if _, controls := r.tr.sent(); len(controls) != 1 {
		t.Errorf("controls = %+v, want a single end_session", controls)
	}
}

func TestEndSessionWaitsForPendingUtterance(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	m = send(t, m, key(KeyTalk))
	r.clock.Advance(time.Second)

	updated, finalize := m.Update(key(KeyTalk))
	m = updated.(Model)
	m = send(t, m, key(KeyEnd))

	binary, controls := r.tr.sent()
	if len(binary) != 0 || len(controls) != 0 {
		t.Fatalf("sent before finalize: binary = %d controls = %+v", len(binary), controls)
	}
	if !m.sess.AwaitingSummary() || m.indicator != LabelSummarizing {
		t.Errorf("awaiting = %v indicator = %q", m.sess.AwaitingSummary(), m.indicator)
	}

	m = run(t, m, finalize)

	binary, controls = r.tr.sent()
	if len(binary) != 1 {
		t.Errorf("binary frames = %d, want 1", len(binary))
	}
	if len(controls) != 1 || controls[0].Type != conn.TypeEndSession {
		t.Errorf("controls = %+v, want end_session after the utterance", controls)
	}
	if m.endDeferred || m.utterancePending {
		t.Error("deferred end should be flushed")
	}
}

func TestEncoderFailureNotice(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	r.enc.err = errors.New("ffmpeg not found")

	m = send(t, m, key(KeyTalk))

	last, ok := m.sess.Transcript.Last()
	if !ok || last.Kind != session.KindNotice || last.Text != encoderFailedPrefix+"ffmpeg not found" {
		t.Fatalf("last turn = %+v", last)
	}
	if m.sess.Activity != session.Idle {
		t.Errorf("activity = %v", m.sess.Activity)
	}
	if r.token.Holder() != audio.OwnerNone {
		t.Errorf("token holder = %q", r.token.Holder())
	}
}

func TestConnectionLostWhileRecording(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	m = send(t, m, key(KeyTalk))

	m = send(t, m, ConnClosedMsg{Err: errors.New("read frame: unexpected EOF")})

	if m.statusText != StatusConnectionError {
		t.Errorf("statusText = %q", m.statusText)
	}
	if r.mic.last().closedCount() == 0 {
		t.Error("capture should be aborted")
	}
	if m.sess.Activity != session.Idle || m.sess.CanRecord() {
		t.Errorf("activity = %v, canRecord = %v", m.sess.Activity, m.sess.CanRecord())
	}
	if r.token.Holder() != audio.OwnerNone {
		t.Errorf("token holder = %q", r.token.Holder())
	}

	m = send(t, m, key(KeyTalk))
	if m.notice != NoticeNotConnected {
		t.Errorf("notice = %q", m.notice)
	}
	if r.mic.openCount() != 1 {
		t.Errorf("mic opens = %d", r.mic.openCount())
	}
}

func TestPressIgnoredWhileSpeaking(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	m = talk(t, r, m, time.Second)
	m = event(t, m, conn.Event{Type: conn.TypeResponse, Text: "Reply"})

	m = send(t, m, key(KeyTalk))

	if r.mic.openCount() != 1 {
		t.Errorf("mic opens = %d, want 1", r.mic.openCount())
	}
	if m.binder.Active() {
		t.Error("ignored press should not leave a gesture in progress")
	}
}

func TestMouseGesture(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)

	m = send(t, m, tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	if m.sess.Activity != session.Recording {
		t.Fatalf("activity = %v, want recording", m.sess.Activity)
	}
	// Space during a mouse gesture is a duplicate.
	m = send(t, m, key(KeyTalk))
	if m.sess.Activity != session.Recording {
		t.Errorf("activity = %v, want recording", m.sess.Activity)
	}

	r.clock.Advance(1500 * time.Millisecond)
	m = send(t, m, tea.MouseMsg{Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})

	if binary, _ := r.tr.sent(); len(binary) != 1 {
		t.Errorf("binary frames = %d, want 1", len(binary))
	}
}

func TestHoldModeReleaseOnTick(t *testing.T) {
	r, m := connectedRig(t, input.ModeHold)

	m = send(t, m, key(KeyTalk))
	if m.sess.Activity != session.Recording {
		t.Fatalf("activity = %v", m.sess.Activity)
	}
	for range 10 {
		r.clock.Advance(100 * time.Millisecond)
		m = send(t, m, key(KeyTalk))
	}
	if m.sess.Activity != session.Recording {
		t.Errorf("repeats should keep recording, activity = %v", m.sess.Activity)
	}

	r.clock.Advance(time.Second)
	m = send(t, m, HoldTickMsg{})

	if binary, _ := r.tr.sent(); len(binary) != 1 {
		t.Errorf("binary frames = %d, want 1", len(binary))
	}
	if m.sess.Activity != session.Processing {
		t.Errorf("activity = %v", m.sess.Activity)
	}
}

func TestHoldModeShortTapDiscarded(t *testing.T) {
	r, m := connectedRig(t, input.ModeHold)

	m = send(t, m, key(KeyTalk))
	r.clock.Advance(200 * time.Millisecond)
	m = send(t, m, HoldTickMsg{})
	r.clock.Advance(600 * time.Millisecond)
	m = send(t, m, HoldTickMsg{})

	if binary, _ := r.tr.sent(); len(binary) != 0 {
		t.Errorf("binary frames after a tap = %d, want 0", len(binary))
	}
	if m.sess.Activity != session.Idle {
		t.Errorf("activity = %v, want idle", m.sess.Activity)
	}
	if m.binder.Active() {
		t.Error("gesture should be over")
	}
}

func TestKeepalive(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)

	m = send(t, m, KeepaliveTickMsg{})
	_, controls := r.tr.sent()
	if len(controls) != 1 || controls[0].Type != conn.TypePing {
		t.Errorf("controls = %+v", controls)
	}

	m = event(t, m, conn.Event{Type: conn.TypePong})
	if m.sess.Transcript.Len() != 0 {
		t.Error("pong should not touch the transcript")
	}
}

func TestLateAudioAfterSummaryIgnored(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	m = send(t, m, key(KeyEnd))
	m = event(t, m, conn.Event{Type: conn.TypeSummary, Summary: "done"})

	m = send(t, m, ServerAudioMsg{Data: []byte("mp3")})

	if r.token.Holder() != audio.OwnerNone {
		t.Errorf("token holder = %q", r.token.Holder())
	}
	if m.indicator != "" {
		t.Errorf("indicator = %q", m.indicator)
	}
}

func TestNoticeClearsOnlyLatest(t *testing.T) {
	m := New(Deps{})
	m.setNotice("first", true)
	m.setNotice("second", true)

	m = update(t, m, ClearNoticeMsg{Seq: 1})
	if m.notice != "second" {
		t.Errorf("notice = %q, stale clear should be ignored", m.notice)
	}
	m = update(t, m, ClearNoticeMsg{Seq: 2})
	if m.notice != "" {
		t.Errorf("notice = %q, want cleared", m.notice)
	}
}

func TestScrollLeavesLiveMode(t *testing.T) {
	_, m := connectedRig(t, input.ModeToggle)
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 12})
	for i := 0; i < 20; i++ {
		m.sess.Notify("notice")
	}
	m.followTranscript()

	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.transcriptLive {
		t.Error("scrolling up should leave live mode")
	}
	if !strings.Contains(m.View(), "SCROLL") {
		t.Error("view should show the scroll badge")
	}

	m = update(t, m, key(KeyLiveFollow))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if !m.transcriptLive {
		t.Error("scrolling to the bottom should return to live mode")
	}
}

func TestQuitReleasesResources(t *testing.T) {
	r, m := connectedRig(t, input.ModeToggle)
	m = send(t, m, key(KeyTalk))

	_, cmd := m.Update(key(KeyQuit))
	if cmd == nil {
		t.Fatal("quit should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit should return tea.Quit")
	}
	if r.tr.State() != conn.StateClosed {
		t.Error("transport should be closed")
	}
	if r.mic.last().closedCount() == 0 {
		t.Error("microphone should be released")
	}
}

func TestViewRendersWithSize(t *testing.T) {
	_, m := connectedRig(t, input.ModeToggle)

	view := m.View()
	if view == "Initializing..." {
		t.Error("view should render with size")
	}
	for _, want := range []string{"AI LIVE", StatusConnected, "TRANSCRIPT", "Space"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewRendersErrorAndNoticeTurns(t *testing.T) {
	_, m := connectedRig(t, input.ModeToggle)
	m = event(t, m, conn.Event{Type: conn.TypeError, Message: "transcription failed"})
	m.sess.Notify("Microphone muted")

	view := m.View()
	for _, want := range []string{"transcription failed", "Microphone muted", "!", "·"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewWithoutSize(t *testing.T) {
	m := New(Deps{})
	if m.View() != "Initializing..." {
		t.Error("view without size should show initializing")
	}
}
