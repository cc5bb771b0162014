// Package session holds the conversation state owned by one program instance:
// connection state, the current activity, the transcript and the final summary.
// Transition methods enforce which events are legal from which state; the
// caller performs the side effects.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrTerminal is returned by every transition once the session is summarized.
var ErrTerminal = errors.New("session: summarized, no further transitions")

// ConnectionState tracks the duplex channel to the backend.
type ConnectionState int

const (
	Connecting ConnectionState = iota
	Open
	Closed
)

// String returns the lowercase name of the state.
func (c ConnectionState) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Activity is what the session is doing while connected.
type Activity int

const (
	Idle Activity = iota
	Recording
	Processing
	Speaking
)

// String returns the lowercase name of the activity.
func (a Activity) String() string {
	switch a {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Status is the single user-visible status derived from connection state and activity.
type Status int

const (
	StatusConnecting Status = iota
	StatusIdle
	StatusRecording
	StatusProcessing
	StatusSpeaking
	StatusDisconnected
	StatusSummarized
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusIdle:
		return "idle"
	case StatusRecording:
		return "recording"
	case StatusProcessing:
		return "processing"
	case StatusSpeaking:
		return "speaking"
	case StatusDisconnected:
		return "disconnected"
	case StatusSummarized:
		return "summarized"
	default:
		return "unknown"
	}
}

// TransitionError reports an event that is not accepted in the current state.
type TransitionError struct {
	Event    string
	Activity Activity
	Conn     ConnectionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: %s not allowed while %s (connection %s)", e.Event, e.Activity, e.Conn)
}

// Session is one logical conversation with the backend.
type Session struct {
	// LocalID correlates log lines for this program instance.
	LocalID string
	// ID is the identifier announced by the backend in session_start.
	ID string

	Connection ConnectionState
	Activity   Activity
	Language   string
	Transcript Transcript
	Summary    *Summary

	awaitingSummary bool
	now             func() time.Time
}

// New creates a session in the connecting state.
func New() *Session {
	return &Session{
		LocalID:    uuid.NewString(),
		Connection: Connecting,
		Activity:   Idle,
		now:        time.Now,
	}
}

// Status derives the user-visible status.
func (s *Session) Status() Status {
	switch {
	case s.Summary != nil:
		return StatusSummarized
	case s.Connection == Connecting:
		return StatusConnecting
	case s.Connection == Closed:
		return StatusDisconnected
	}
	switch s.Activity {
	case Recording:
		return StatusRecording
	case Processing:
		return StatusProcessing
	case Speaking:
		return StatusSpeaking
	default:
		return StatusIdle
	}
}

// Interactive reports whether user input is accepted.
func (s *Session) Interactive() bool {
	return s.Summary == nil && s.Connection == Open
}

// AwaitingSummary reports whether end_session was sent and no summary has arrived.
func (s *Session) AwaitingSummary() bool {
	return s.awaitingSummary
}

// Summarized reports whether the terminal summary has been received.
func (s *Session) Summarized() bool {
	return s.Summary != nil
}

// Opened marks the connection open. A summarized session stays terminal.
func (s *Session) Opened() error {
	if s.Summary != nil {
		return ErrTerminal
	}
	s.Connection = Open
	return nil
}

// Started records the backend session identifier.
func (s *Session) Started(id string) {
	if id = strings.TrimSpace(id); id != "" {
		s.ID = id
	}
}

// Closeup marks the connection closed and drops any in-flight activity.
// The transcript and summary are kept for display.
func (s *Session) Closeup() {
	s.Connection = Closed
	if s.Summary != nil {
		return
	}
	s.Activity = Idle
	s.awaitingSummary = false
}

// CanRecord reports whether a press may start a recording.
func (s *Session) CanRecord() bool {
	return s.Interactive() && s.Activity == Idle && !s.awaitingSummary
}

// BeginRecording moves idle to recording once the microphone is granted.
func (s *Session) BeginRecording() error {
	if s.Summary != nil {
		return ErrTerminal
	}
	if !s.CanRecord() {
		return s.reject("begin recording")
	}
	s.Activity = Recording
	return nil
}

// FinishRecording leaves the recording state. When sent is true the session
// waits for a transcription; otherwise it returns to idle.
func (s *Session) FinishRecording(sent bool) error {
	if s.Summary != nil {
		return ErrTerminal
	}
	if s.Activity != Recording {
		return s.reject("finish recording")
	}
	if sent {
		s.Activity = Processing
	} else {
		s.Activity = Idle
	}
	return nil
}

// Abandon returns to idle after a send failed or an utterance was dropped.
// A session waiting for its summary keeps waiting.
func (s *Session) Abandon() {
	if s.Summary != nil || s.awaitingSummary {
		return
	}
	if s.Activity == Processing || s.Activity == Recording {
		s.Activity = Idle
	}
}

// Transcribed handles a transcription event. It reports whether speech was heard;
// empty text returns the session to idle without adding a turn.
func (s *Session) Transcribed(text, language string) (bool, error) {
	if s.Summary != nil {
		return false, ErrTerminal
	}
	text = strings.TrimSpace(text)
	if text == "" {
		if s.Activity == Processing && !s.awaitingSummary {
			s.Activity = Idle
		}
		return false, nil
	}
	if language = strings.TrimSpace(language); language != "" {
		s.Language = language
	}
	s.Transcript.Append(Turn{Speaker: User, Text: text, Language: language, At: s.now()})
	return true, nil
}

// Responded appends the agent turn and moves to speaking.
func (s *Session) Responded(text string) error {
	if s.Summary != nil {
		return ErrTerminal
	}
	s.Transcript.Append(Turn{Speaker: Agent, Text: text, At: s.now()})
	if !s.awaitingSummary {
		s.Activity = Speaking
	}
	return nil
}

// PlaybackEnded returns a speaking session to idle. It reports whether the
// processing indicator should be hidden.
func (s *Session) PlaybackEnded() bool {
	if s.Summary != nil || s.awaitingSummary {
		return false
	}
	switch s.Activity {
	case Speaking, Processing:
		s.Activity = Idle
		return true
	case Idle:
		return true
	}
	return false
}

// Failed appends a backend error turn. A processing session returns to idle
// unless it is waiting for the summary; other activities are unchanged.
func (s *Session) Failed(message string) error {
	if s.Summary != nil {
		return ErrTerminal
	}
	s.Transcript.Append(Turn{Speaker: System, Kind: KindError, Text: message, At: s.now()})
	if s.Activity == Processing && !s.awaitingSummary {
		s.Activity = Idle
	}
	return nil
}

// Notify appends a local notice to the transcript.
func (s *Session) Notify(text string) {
	if s.Summary != nil {
		return
	}
	s.Transcript.Append(Turn{Speaker: System, Kind: KindNotice, Text: text, At: s.now()})
}

// RequestSummary moves idle or processing to processing while the summary is generated.
func (s *Session) RequestSummary() error {
	if s.Summary != nil {
		return ErrTerminal
	}
	if !s.Interactive() || s.awaitingSummary {
		return s.reject("end session")
	}
	if s.Activity != Idle && s.Activity != Processing {
		return s.reject("end session")
	}
	s.Activity = Processing
	s.awaitingSummary = true
	return nil
}

// CancelSummary undoes RequestSummary when the end_session frame could not be sent.
func (s *Session) CancelSummary() {
	if s.Summary != nil || !s.awaitingSummary {
		return
	}
	s.awaitingSummary = false
	s.Activity = Idle
}

// Summarize stores the terminal summary. It is accepted at most once.
func (s *Session) Summarize(sum Summary) error {
	if s.Summary != nil {
		return ErrTerminal
	}
	s.Summary = &sum
	s.awaitingSummary = false
	s.Activity = Idle
	return nil
}

func (s *Session) reject(event string) error {
	return &TransitionError{Event: event, Activity: s.Activity, Conn: s.Connection}
}
