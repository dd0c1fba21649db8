package streamjson

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docexplain/docexplain/internal/assistant"
	"github.com/docexplain/docexplain/internal/llm/openai"
)

// Event type names.
const (
	TypeSystem = "system"
	TypeState  = "state"
	TypeResult = "result"
)

// SystemEvent announces a session before any answer text.
type SystemEvent struct {
	// Type is always "system".
	Type string `json:"type"`
	// Subtype categorizes the system event.
	Subtype string `json:"subtype"`
	// Model is the provider model identifier.
	Model string `json:"model"`
	// Selection is the passage being explained.
	Selection string `json:"selection"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
}

// DeltaEvent mirrors one parsed response event.
type DeltaEvent struct {
	// Type is content_delta, reasoning_delta, malformed or done.
	Type string `json:"type"`
	// Text carries the delta or the raw malformed input.
	Text string `json:"text,omitempty"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
}

// StateEvent reports a session state transition.
type StateEvent struct {
	// Type is always "state".
	Type string `json:"type"`
	// State is the new lifecycle state name.
	State string `json:"state"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
}

// ResultEvent represents the terminal stream-json result.
type ResultEvent struct {
	// Type is always "result".
	Type string `json:"type"`
	// Subtype is success, error or cancelled.
	Subtype string `json:"subtype"`
	// IsError reports whether the session failed.
	IsError bool `json:"is_error"`
	// DurationMS is the total runtime in milliseconds.
	DurationMS int64 `json:"duration_ms"`
	// Result contains the final answer text.
	Result string `json:"result"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
	// Errors holds error messages for error subtypes.
	Errors []string `json:"errors,omitempty"`
}

// Writer emits stream-json events as JSON Lines. It is safe for concurrent use.
type Writer struct {
	// mu serializes lines.
	mu sync.Mutex
	// writer receives the lines.
	writer io.Writer
	// err is the first write failure seen by a callback.
	err error
}

// NewWriter constructs a stream-json writer.
func NewWriter(writer io.Writer) *Writer {
	return &Writer{writer: writer}
}

// Write emits a single event as a JSON line.
func (w *Writer) Write(event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stream-json event: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write stream-json event: %w", err)
	}
	return nil
}

// Err returns the first failure from a callback-driven write.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Callbacks returns controller hooks that mirror every event and state change.
// Each session is announced with a system event before its first state line.
func (w *Writer) Callbacks(model string) assistant.Callbacks {
	return assistant.Callbacks{
		OnEvent: func(session *assistant.Session, event openai.Event) {
			w.keep(w.Write(BuildDeltaEvent(session.ID, event)))
		},
		OnStateChange: func(session *assistant.Session, state assistant.State) {
			if state == assistant.StateAwaiting {
				w.keep(w.Write(BuildSystemEvent(session, model)))
			}
			w.keep(w.Write(StateEvent{
				Type:      TypeState,
				State:     state.String(),
				SessionID: session.ID,
				UUID:      NewUUID(),
			}))
		},
	}
}

// keep records err if it is the first failure.
func (w *Writer) keep(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

// NewUUID returns a new UUID string for stream-json events.
func NewUUID() string {
	return uuid.NewString()
}

// BuildSystemEvent constructs the init event for a session.
func BuildSystemEvent(session *assistant.Session, model string) SystemEvent {
	return SystemEvent{
		Type:      TypeSystem,
		Subtype:   "init",
		Model:     model,
		Selection: session.SelectedText,
		SessionID: session.ID,
		UUID:      NewUUID(),
	}
}

// BuildDeltaEvent converts a parsed response event.
func BuildDeltaEvent(sessionID string, event openai.Event) DeltaEvent {
	return DeltaEvent{
		Type:      event.Kind.String(),
		Text:      event.Text,
		SessionID: sessionID,
		UUID:      NewUUID(),
	}
}

// BuildResultEvent summarizes a finished session.
func BuildResultEvent(session *assistant.Session, duration time.Duration) ResultEvent {
	result := ResultEvent{
		Type:       TypeResult,
		Subtype:    "success",
		DurationMS: duration.Milliseconds(),
		Result:     session.Answer(),
		SessionID:  session.ID,
		UUID:       NewUUID(),
	}
	switch session.State() {
	case assistant.StateErrored:
		result.Subtype = "error"
		result.IsError = true
	case assistant.StateAborted, assistant.StateClosed:
		result.Subtype = "cancelled"
	}
	if err := session.Err(); err != nil && result.IsError {
		result.Errors = []string{err.Error()}
	}
	return result
}
