// Package models defines session state structures for grievanced dialogues.
package models

import (
	"encoding/json"
	"time"
)

// SessionPhase represents the dialogue phase of a chat session.
type SessionPhase string

const (
	// PhaseIdle means no filing or query cycle is active.
	PhaseIdle SessionPhase = "IDLE"
	// PhaseCollecting means the extraction engine is gathering fields.
	PhaseCollecting SessionPhase = "COLLECTING"
	// PhaseConfirming means a summary has been shown and awaits confirmation.
	PhaseConfirming SessionPhase = "CONFIRMING"
	// PhaseDone means the complaint was created; terminal for the cycle.
	PhaseDone SessionPhase = "DONE"
	// PhaseAbandoned means the user cancelled or the session went stale.
	PhaseAbandoned SessionPhase = "ABANDONED"
)

// Speaker identifies who produced a turn in the session history.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// Turn is one utterance in a session's history. History is append-only.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	Time    time.Time `json:"time"`
}

// Session is the per-conversation accumulator of extracted fields and
// dialogue phase. A session accumulates toward exactly one complaint or one
// query at a time and is owned by a single logical worker per turn.
type Session struct {
	ID                string            `json:"id"`
	Phase             SessionPhase      `json:"phase"`
	Intent            Intent            `json:"intent,omitempty"`
	Fields            map[string]string `json:"fields,omitempty"`
	History           []Turn            `json:"history,omitempty"`
	InconclusiveTurns int               `json:"inconclusive_turns"`
	// ComplaintID is set when the cycle reached DONE and the complaint was
	// persisted; it backs the create-at-most-once guard.
	ComplaintID string    `json:"complaint_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewSession creates an idle session with the given identifier.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Phase:     PhaseIdle,
		Fields:    make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanTransitionTo reports whether the dialogue phase machine allows moving
// from the session's current phase to next. CONFIRMING may fall back to
// COLLECTING on a rejected summary; ABANDONED is reachable from any active
// phase; DONE is terminal.
func (p SessionPhase) CanTransitionTo(next SessionPhase) bool {
	switch p {
	case PhaseIdle:
		return next == PhaseCollecting
	case PhaseCollecting:
		return next == PhaseConfirming || next == PhaseAbandoned
	case PhaseConfirming:
		return next == PhaseDone || next == PhaseCollecting || next == PhaseAbandoned
	default:
		return false
	}
}

// Active reports whether the session is mid-cycle (collecting or confirming).
func (s *Session) Active() bool {
	return s.Phase == PhaseCollecting || s.Phase == PhaseConfirming
}

// AppendTurn records an utterance in the session history.
func (s *Session) AppendTurn(speaker Speaker, text string) {
	s.History = append(s.History, Turn{Speaker: speaker, Text: text, Time: time.Now()})
	s.UpdatedAt = time.Now()
}

// SetField stores a validated field value. The first valid value wins: once a
// field is filled it is never overwritten, keeping the conversation monotonic.
// Returns true if the value was stored.
func (s *Session) SetField(name, value string) bool {
	if s.Fields == nil {
		s.Fields = make(map[string]string)
	}
	if _, exists := s.Fields[name]; exists {
		return false
	}
	s.Fields[name] = value
	s.UpdatedAt = time.Now()
	return true
}

// ClearFields removes the named fields so they can be re-asked after a
// rejected confirmation. Clearing an unfilled field is a no-op.
func (s *Session) ClearFields(names ...string) {
	for _, name := range names {
		delete(s.Fields, name)
	}
	s.UpdatedAt = time.Now()
}

// Reset begins a fresh filing/query cycle, discarding accumulated fields and
// the active intent. History is retained: it is append-only for the life of
// the session.
func (s *Session) Reset() {
	s.Phase = PhaseIdle
	s.Intent = ""
	s.Fields = make(map[string]string)
	s.InconclusiveTurns = 0
	s.ComplaintID = ""
	s.UpdatedAt = time.Now()
}

// ToJSON serializes the session for state storage.
func (s *Session) ToJSON() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON deserializes a session from state storage.
func (s *Session) FromJSON(data string) error {
	return json.Unmarshal([]byte(data), s)
}
