package assistant

import (
	"context"
	"io"

	"github.com/docexplain/docexplain/internal/llm/openai"
)

// Panel is the explanation display. Only the Controller writes to it.
type Panel interface {
	SetSelectedText(text string)
	SetAnswerMarkup(markup string)
	SetTitle(title string)
	Show()
	Hide()
}

// Transport sends one prompt and returns a cancellable streaming body.
type Transport interface {
	OpenStream(ctx context.Context, req *openai.ChatRequest) (io.ReadCloser, error)
}

// Callbacks observe session progress. They run on the session goroutine
// while the controller lock is held and must not call back into it.
type Callbacks struct {
	// OnEvent receives every parsed event that is applied to the panel.
	OnEvent func(session *Session, event openai.Event)
	// OnStateChange fires after each state transition.
	OnStateChange func(session *Session, state State)
}

// Panel titles.
const (
	DefaultTitle  = "Explanation"
	loadingSuffix = " (answering)"
)

// NopPanel discards all writes.
type NopPanel struct{}

func (NopPanel) SetSelectedText(string) {}
func (NopPanel) SetAnswerMarkup(string) {}
func (NopPanel) SetTitle(string)        {}
func (NopPanel) Show()                  {}
func (NopPanel) Hide()                  {}
