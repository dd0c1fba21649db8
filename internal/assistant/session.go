package assistant

import (
	"context"
	"strings"
	"sync"
)

// State is the lifecycle position of a Session.
type State int

const (
	// StateIdle means the answer finished normally.
	StateIdle State = iota
	// StateAwaiting means the outline and prompt are being prepared.
	StateAwaiting
	// StateStreaming means response bytes are arriving.
	StateStreaming
	// StateAborted means the user closed the panel mid-answer.
	StateAborted
	// StateErrored means the outline, prompt or transport failed.
	StateErrored
	// StateClosed means the session was superseded or its finished panel was closed.
	StateClosed
)

// String returns a lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting"
	case StateStreaming:
		return "streaming"
	case StateAborted:
		return "aborted"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Active reports whether the state holds an in-flight request.
func (s State) Active() bool {
	return s == StateAwaiting || s == StateStreaming
}

// Session is one open-to-close lifecycle of the answer panel.
type Session struct {
	// ID identifies the session in logs and stream-json output.
	ID string
	// SelectedText is the passage captured at open time.
	SelectedText string

	// ctx is the cancellation token; only this session cancels it.
	ctx context.Context
	// cancel invalidates ctx.
	cancel context.CancelFunc
	// done is closed when the session goroutine exits.
	done chan struct{}

	// mu guards the fields below.
	mu sync.Mutex
	// state is the current lifecycle state.
	state State
	// deltas are the answer fragments in arrival order.
	deltas []string
	// err records why the session stopped, if it did not finish normally.
	err error
}

// newSession creates a session in the Awaiting state.
func newSession(parent context.Context, id string, selectedText string) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:           id,
		SelectedText: selectedText,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		state:        StateAwaiting,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Answer returns the concatenated answer so far.
func (s *Session) Answer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.deltas, "")
}

// Deltas returns a copy of the answer fragments.
func (s *Session) Deltas() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deltas...)
}

// Err returns the failure or cancellation cause, or nil after a normal finish.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session has stopped touching the transport.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session goroutine exits or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cancelled reports whether the token was invalidated.
func (s *Session) cancelled() bool {
	return s.ctx.Err() != nil
}

// setState records next and, if none is set yet, err. Writers hold the
// controller lock, so a read-then-set by the controller is atomic.
func (s *Session) setState(next State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
	if err != nil && s.err == nil {
		s.err = err
	}
}

// appendDelta records an answer fragment.
func (s *Session) appendDelta(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, text)
}
