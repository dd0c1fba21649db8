// Package markup turns accumulated markdown answers into displayable markup.
package markup

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Supported format names.
const (
	FormatPlain    = "text"
	FormatTerminal = "markdown"
	FormatHTML     = "html"
)

// Plain returns the text unchanged.
func Plain(text string) string {
	return text
}

// Terminal returns a glamour renderer wrapped at width. Render failures fall
// back to the raw text so a half-written answer is still visible.
func Terminal(width int) (func(string) string, error) {
	return terminal(width, glamour.WithAutoStyle())
}

func terminal(width int, style glamour.TermRendererOption) (func(string) string, error) {
	options := []glamour.TermRendererOption{style}
	if width > 0 {
		options = append(options, glamour.WithWordWrap(width))
	}
	renderer, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return nil, fmt.Errorf("create terminal renderer: %w", err)
	}
	return func(text string) string {
		if text == "" {
			return ""
		}
		rendered, err := renderer.Render(text)
		if err != nil {
			return text
		}
		return rendered
	}, nil
}

// Resizable is a terminal renderer whose wrap width follows the window. The
// style is resolved once so resizing never queries the terminal again.
type Resizable struct {
	// mu guards the fields below.
	mu sync.Mutex
	// style is the resolved glamour style.
	style glamour.TermRendererOption
	// width is the current wrap width.
	width int
	// render wraps at width.
	render func(string) string
}

// NewResizable returns a Resizable wrapped at width.
func NewResizable(width int) (*Resizable, error) {
	style := "light"
	if lipgloss.HasDarkBackground() {
		style = "dark"
	}
	r := &Resizable{style: glamour.WithStandardStyle(style), width: -1}
	if _, err := r.SetWidth(width); err != nil {
		return nil, err
	}
	return r, nil
}

// Render renders text at the current width.
func (r *Resizable) Render(text string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.render(text)
}

// SetWidth rebuilds the renderer for a new width and reports whether it changed.
func (r *Resizable) SetWidth(width int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if width == r.width {
		return false, nil
	}
	render, err := terminal(width, r.style)
	if err != nil {
		return false, err
	}
	r.width = width
	r.render = render
	return true, nil
}

// Width returns the current wrap width.
func (r *Resizable) Width() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width
}

// HTML returns a renderer producing sanitized HTML.
func HTML() func(string) string {
	converter := goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy := bluemonday.UGCPolicy()
	return func(text string) string {
		var buf bytes.Buffer
		if err := converter.Convert([]byte(text), &buf); err != nil {
			return policy.Sanitize(text)
		}
		return policy.Sanitize(buf.String())
	}
}

// ForFormat picks a renderer by format name.
func ForFormat(format string, width int) (func(string) string, error) {
	switch format {
	case "", FormatPlain:
		return Plain, nil
	case FormatTerminal:
		return Terminal(width)
	case FormatHTML:
		return HTML(), nil
	default:
		return nil, fmt.Errorf("unknown markup format %q", format)
	}
}
