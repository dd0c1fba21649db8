package assistant

import "strings"

// MarkupFunc converts the full accumulated answer to display markup.
type MarkupFunc func(text string) string

// Renderer accumulates answer deltas and re-renders the whole answer on each
// one, so the output always equals rendering the final text in one go.
type Renderer struct {
	// markup renders accumulated text; nil means identity.
	markup MarkupFunc
	// text accumulates every applied delta.
	text strings.Builder
	// current is the markup for text.
	current string
}

// NewRenderer constructs a Renderer around markup.
func NewRenderer(markup MarkupFunc) *Renderer {
	return &Renderer{markup: markup}
}

// Apply appends delta and returns the markup for the full answer.
func (r *Renderer) Apply(delta string) string {
	r.text.WriteString(delta)
	if r.markup == nil {
		r.current = r.text.String()
	} else {
		r.current = r.markup(r.text.String())
	}
	return r.current
}

// Reset clears the accumulated text and markup.
func (r *Renderer) Reset() {
	r.text.Reset()
	r.current = ""
}

// Text returns the accumulated raw text.
func (r *Renderer) Text() string {
	return r.text.String()
}

// Markup returns the last rendered markup.
func (r *Renderer) Markup() string {
	return r.current
}
