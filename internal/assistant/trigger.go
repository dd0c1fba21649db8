package assistant

import (
	"context"
	"strings"
)

// SelectionSource reports the text currently highlighted by the user.
type SelectionSource interface {
	Selection() string
}

// SelectionFunc adapts a function to SelectionSource.
type SelectionFunc func() string

// Selection returns f().
func (f SelectionFunc) Selection() string {
	return f()
}

// Surface binds the explain action and the close action to a Controller.
type Surface struct {
	// Controller receives the actions.
	Controller *Controller
	// Selection supplies the highlighted text.
	Selection SelectionSource
}

// Activate explains the current selection. With nothing selected it does
// nothing and returns a nil session; while an answer is loading it returns ErrBusy.
func (s Surface) Activate(ctx context.Context) (*Session, error) {
	if s.Controller == nil || s.Selection == nil {
		return nil, nil
	}
	text := s.Selection.Selection()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return s.Controller.Trigger(ctx, text)
}

// Enabled reports whether Activate would start a session.
func (s Surface) Enabled() bool {
	if s.Controller == nil || s.Selection == nil {
		return false
	}
	return strings.TrimSpace(s.Selection.Selection()) != "" && !s.Controller.Loading()
}

// CloseAction closes the explanation panel.
func (s Surface) CloseAction() {
	if s.Controller != nil {
		s.Controller.Close()
	}
}
