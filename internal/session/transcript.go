package session

import (
	"strings"
	"time"
)

// Speaker identifies who produced a transcript turn.
type Speaker string

const (
	User   Speaker = "user"
	Agent  Speaker = "agent"
	System Speaker = "system"
)

// TurnKind separates conversation turns from local notices and backend errors.
type TurnKind int

const (
	KindMessage TurnKind = iota
	KindError
	KindNotice
)

// Turn is one transcript entry.
type Turn struct {
	Speaker  Speaker
	Kind     TurnKind
	Text     string
	Language string
	At       time.Time
}

// LanguageTag returns the uppercase language code, or "" when none was detected.
func (t Turn) LanguageTag() string {
	return strings.ToUpper(strings.TrimSpace(t.Language))
}

// Transcript is an append-only list of turns.
type Transcript struct {
	turns []Turn
}

// Append adds a turn at the end.
func (t *Transcript) Append(turn Turn) {
	t.turns = append(t.turns, turn)
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Turns returns a copy of all turns in order.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Last returns the most recent turn.
func (t *Transcript) Last() (Turn, bool) {
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

// Count returns how many turns a speaker produced.
func (t *Transcript) Count(sp Speaker) int {
	n := 0
	for _, turn := range t.turns {
		if turn.Speaker == sp {
			n++
		}
	}
	return n
}

// Sentiment is the backend's sentiment analysis of the finished conversation.
type Sentiment struct {
	Overall string
	Score   *float64
	Details string
}

// Summary is the terminal artifact produced after end_session.
type Summary struct {
	Text          string
	Sentiment     Sentiment
	TurnCount     int
	LanguagesUsed []string
}
