// Package conn provides the websocket client and protocol types for talking to
// the voice backend. Text frames carry JSON events tagged by "type"; binary
// frames carry audio with no header.
package conn

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound event types.
const (
	TypeSessionStart  = "session_start"
	TypeTranscription = "transcription"
	TypeResponse      = "response"
	TypeSummary       = "summary"
	TypeError         = "error"
	TypePong          = "pong"
)

// Outbound control types.
const (
	TypeEndSession = "end_session"
	TypePing       = "ping"
)

// Event is a structured message from the backend. Only the fields of the
// event's type are set.
type Event struct {
	Type          string     `json:"type"`
	SessionID     string     `json:"session_id,omitempty"`
	Text          string     `json:"text,omitempty"`
	Language      string     `json:"language,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	Sentiment     *Sentiment `json:"sentiment,omitempty"`
	TurnCount     *int       `json:"turn_count,omitempty"`
	LanguagesUsed []string   `json:"languages_used,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// Sentiment is the summary's sentiment block.
type Sentiment struct {
	Overall string   `json:"overall,omitempty"`
	Score   *float64 `json:"score,omitempty"`
	Details string   `json:"details,omitempty"`
}

// Control is a structured message sent to the backend.
type Control struct {
	Type string `json:"type"`
}

// EndSession asks the backend to summarize and close the session.
func EndSession() Control { return Control{Type: TypeEndSession} }

// Ping is the application-level keepalive; the backend answers with pong.
func Ping() Control { return Control{Type: TypePing} }

// ProtocolError reports a text frame that is not a valid event.
type ProtocolError struct {
	Frame string
	Err   error
}

func (e *ProtocolError) Error() string {
	frame := e.Frame
	if len(frame) > 64 {
		frame = frame[:64] + "..."
	}
	return fmt.Sprintf("malformed event %q: %v", frame, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ParseEvent decodes a text frame. The type discriminator is required.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, &ProtocolError{Frame: string(data), Err: err}
	}
	ev.Type = strings.TrimSpace(ev.Type)
	if ev.Type == "" {
		return Event{}, &ProtocolError{Frame: string(data), Err: fmt.Errorf("missing type")}
	}
	return ev, nil
}

// Known reports whether the event type is part of the protocol.
func (e Event) Known() bool {
	switch e.Type {
	case TypeSessionStart, TypeTranscription, TypeResponse, TypeSummary, TypeError, TypePong:
		return true
	}
	return false
}
