// Package protocol defines the websocket messages exchanged between
// collaborating clients and the server.
//
// Every frame is a JSON Envelope. Client events carry the session id in their
// payload; server events derived from a client message carry that client's
// origin id so receivers can recognise their own echoes.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client → server events.
const (
	EventJoinSession    = "join-session"
	EventCodeChange     = "code-change"
	EventLanguageChange = "language-change"
	EventOutputChange   = "output-change"
	EventExecute        = "execute"
)

// Server → client events.
const (
	EventSessionData     = "session-data"
	EventCodeUpdate      = "code-update"
	EventLanguageUpdate  = "language-update"
	EventOutputUpdate    = "output-update"
	EventExecutionResult = "execution-result"
	EventError           = "error"
)

// MsgSessionNotFound is the error payload for a join on an unknown session.
const MsgSessionNotFound = "Session not found"

// Envelope is one websocket frame.
type Envelope struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	Origin string          `json:"origin,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any, origin string) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s: %w", event, err)
	}
	return Envelope{Event: event, Data: raw, Origin: origin}, nil
}

// MustEnvelope is NewEnvelope for payloads that cannot fail to marshal
// (strings and the structs in this package).
func MustEnvelope(event string, data any, origin string) Envelope {
	env, err := NewEnvelope(event, data, origin)
	if err != nil {
		panic(err)
	}
	return env
}

// ErrorEnvelope builds an error event carrying msg.
func ErrorEnvelope(msg string) Envelope {
	return MustEnvelope(EventError, msg, "")
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: missing data", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: invalid data: %w", e.Event, err)
	}
	return nil
}

// CodeChange is the payload of code-change.
type CodeChange struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

// LanguageChange is the payload of language-change.
type LanguageChange struct {
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
}

// OutputChange is the payload of output-change.
type OutputChange struct {
	SessionID string `json:"sessionId"`
	Output    string `json:"output"`
}

// ExecuteRequest is the payload of execute.
type ExecuteRequest struct {
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
	Code      string `json:"code"`
	// RunID is echoed in the matching execution-result.
	RunID string `json:"runId,omitempty"`
}

// ExecutionResult is the payload of execution-result.
type ExecutionResult struct {
	Output     string `json:"output"`
	Failed     bool   `json:"failed"`
	DurationMS int64  `json:"durationMs"`
	RunID      string `json:"runId,omitempty"`
	// Error is set when the run could not be started at all.
	Error string `json:"error,omitempty"`
}
