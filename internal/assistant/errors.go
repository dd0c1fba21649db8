package assistant

import "errors"

var (
	// ErrEmptySelection is returned when Open or Trigger receives no text.
	ErrEmptySelection = errors.New("selection is empty")
	// ErrBusy is returned by Trigger while an answer is loading.
	ErrBusy = errors.New("an answer is already loading")
	// ErrOutlineUnavailable wraps outline failures; the session continues without one.
	ErrOutlineUnavailable = errors.New("outline unavailable")
	// ErrTransport wraps request setup and mid-stream read failures.
	ErrTransport = errors.New("transport error")
	// ErrCancelled marks sessions stopped by Close or a superseding Open.
	ErrCancelled = errors.New("session cancelled")
)
