// Package assistant runs "explain the selected text" sessions: it builds the
// prompt, streams the answer from a chat-completion endpoint and renders it
// into a panel while guaranteeing that at most one answer is in flight.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docexplain/docexplain/internal/llm/openai"
	"github.com/docexplain/docexplain/internal/outline"
)

// defaultChunkSize is the read buffer for the response body.
const defaultChunkSize = 4096

// Options configures a Controller.
type Options struct {
	// Transport issues the streaming request.
	Transport Transport
	// Outline supplies the document outline; nil means no outline.
	Outline outline.Provider
	// Panel displays the session; nil discards output.
	Panel Panel
	// Markup renders the accumulated answer; nil means plain text.
	Markup MarkupFunc
	// Model is the provider model identifier.
	Model string
	// PromptTemplate overrides DefaultPromptTemplate.
	PromptTemplate string
	// Logger receives lifecycle logs; nil disables logging.
	Logger *zap.Logger
	// Callbacks observe events and state changes.
	Callbacks Callbacks
	// ChunkSize sets the body read size.
	ChunkSize int
}

// Controller owns the explanation panel and the single in-flight session.
type Controller struct {
	// transport issues streaming requests.
	transport Transport
	// outline supplies document titles.
	outline outline.Provider
	// panel is written only while mu is held.
	panel Panel
	// renderer accumulates the current session's answer.
	renderer *Renderer
	// model is sent with every request.
	model string
	// template is the prompt template.
	template string
	// logger records lifecycle events.
	logger *zap.Logger
	// callbacks observe progress.
	callbacks Callbacks
	// chunkSize is the body read size.
	chunkSize int
	// newID generates session ids.
	newID func() string

	// mu serializes every session transition and panel write.
	mu sync.Mutex
	// current is the most recently opened session.
	current *Session
	// loading is set while current is awaiting or streaming.
	loading bool
}

// NewController validates options and constructs a Controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}
	controller := &Controller{
		transport: opts.Transport,
		outline:   opts.Outline,
		panel:     opts.Panel,
		renderer:  NewRenderer(opts.Markup),
		model:     opts.Model,
		template:  opts.PromptTemplate,
		logger:    opts.Logger,
		callbacks: opts.Callbacks,
		chunkSize: opts.ChunkSize,
		newID:     uuid.NewString,
	}
	if controller.outline == nil {
		controller.outline = outline.Static(nil)
	}
	if controller.panel == nil {
		controller.panel = NopPanel{}
	}
	if controller.logger == nil {
		controller.logger = zap.NewNop()
	}
	if controller.chunkSize <= 0 {
		controller.chunkSize = defaultChunkSize
	}
	return controller, nil
}

// Open starts a session for selectedText, cancelling any active one first.
func (c *Controller) Open(ctx context.Context, selectedText string) (*Session, error) {
	if strings.TrimSpace(selectedText) == "" {
		return nil, ErrEmptySelection
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked(ctx, selectedText), nil
}

// Trigger is the user-initiated path: it refuses to start while an answer is
// loading instead of replacing it.
func (c *Controller) Trigger(ctx context.Context, selectedText string) (*Session, error) {
	if strings.TrimSpace(selectedText) == "" {
		return nil, ErrEmptySelection
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return nil, ErrBusy
	}
	return c.openLocked(ctx, selectedText), nil
}

// Close aborts an in-flight answer and hides the panel. It is a no-op when
// nothing is displayed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	session := c.current
	if session == nil {
		return
	}
	switch state := session.State(); {
	case state.Active():
		session.cancel()
		session.setState(StateAborted, ErrCancelled)
		c.loading = false
		c.panel.SetTitle(DefaultTitle)
		c.notifyState(session)
		c.logger.Info("session aborted", zap.String("session_id", session.ID))
	case state == StateAborted || state == StateClosed:
		return
	default:
		session.setState(StateClosed, nil)
		c.notifyState(session)
	}
	c.panel.Hide()
}

// Current returns the most recently opened session, or nil.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Loading reports whether an answer is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// openLocked replaces the current session. c.mu must be held.
func (c *Controller) openLocked(ctx context.Context, selectedText string) *Session {
	if previous := c.current; previous != nil {
		// The old token is invalidated before the new request exists.
		previous.cancel()
		switch state := previous.State(); {
		case state.Active():
			previous.setState(StateClosed, ErrCancelled)
			c.notifyState(previous)
			c.logger.Info("session superseded", zap.String("session_id", previous.ID))
		case state != StateClosed:
			previous.setState(StateClosed, nil)
			c.notifyState(previous)
		}
	}

	c.renderer.Reset()
	c.panel.SetSelectedText("")
	c.panel.SetAnswerMarkup("")
	c.panel.Show()

	session := newSession(ctx, c.newID(), selectedText)
	c.current = session
	c.loading = true
	c.notifyState(session)
	c.logger.Info("session opened",
		zap.String("session_id", session.ID),
		zap.String("model", c.model),
		zap.Int("selection_bytes", len(selectedText)),
	)

	go c.streamAnswer(session)
	return session
}

// streamAnswer prepares the prompt, issues the request and drives the parser.
func (c *Controller) streamAnswer(session *Session) {
	defer close(session.done)
	defer session.cancel()
	logger := c.logger.With(zap.String("session_id", session.ID))

	titles, err := c.outline.Outline(session.ctx)
	if err != nil {
		logger.Warn("continuing without outline", zap.Error(fmt.Errorf("%w: %w", ErrOutlineUnavailable, err)))
		titles = nil
	}
	if session.cancelled() {
		c.stopCancelled(session)
		return
	}

	prompt, err := BuildPrompt(c.template, session.SelectedText, titles)
	if err != nil {
		c.fail(session, fmt.Errorf("build prompt: %w", err))
		return
	}
	if !c.beginLoading(session) {
		c.stopCancelled(session)
		return
	}

	body, err := c.transport.OpenStream(session.ctx, &openai.ChatRequest{
		Model:    c.model,
		Messages: []openai.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		if session.cancelled() {
			c.stopCancelled(session)
			return
		}
		c.fail(session, fmt.Errorf("%w: %w", ErrTransport, err))
		return
	}
	defer body.Close()

	c.consume(session, body, logger)
}

// consume reads body chunk by chunk until Done, end of stream, failure or
// cancellation.
func (c *Controller) consume(session *Session, body io.Reader, logger *zap.Logger) {
	parser := openai.NewFrameParser()
	decoder := &chunkDecoder{}
	buf := make([]byte, c.chunkSize)
	streaming := false
	received := 0

	for {
		if session.cancelled() {
			c.stopCancelled(session)
			return
		}
		n, readErr := body.Read(buf)
		if n > 0 {
			received += n
			if !streaming {
				streaming = true
				if !c.markStreaming(session) {
					c.stopCancelled(session)
					return
				}
			}
			done, ok := c.apply(session, parser.Feed(decoder.Decode(buf[:n])))
			if !ok {
				c.stopCancelled(session)
				return
			}
			if done {
				c.complete(session, parser.Summary(), received)
				return
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			events := parser.Feed(decoder.Flush())
			events = append(events, parser.Close()...)
			if _, ok := c.apply(session, events); !ok {
				c.stopCancelled(session)
				return
			}
			c.complete(session, parser.Summary(), received)
			return
		}
		if session.cancelled() {
			c.stopCancelled(session)
			return
		}
		logger.Debug("stream read failed", zap.Int("bytes", received))
		c.fail(session, fmt.Errorf("%w: read stream: %w", ErrTransport, readErr))
		return
	}
}

// beginLoading shows the loading title and the selection once the prompt is
// ready. It reports false if the session may no longer touch the panel.
func (c *Controller) beginLoading(session *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ownsPanel(session) {
		return false
	}
	c.panel.SetTitle(DefaultTitle + loadingSuffix)
	c.panel.SetSelectedText(session.SelectedText)
	return true
}

// markStreaming records the first response byte.
func (c *Controller) markStreaming(session *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ownsPanel(session) {
		return false
	}
	session.setState(StateStreaming, nil)
	c.notifyState(session)
	return true
}

// apply renders events in order. It reports whether Done was seen and
// whether the session still owns the panel.
func (c *Controller) apply(session *Session, events []openai.Event) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ownsPanel(session) {
		return false, false
	}
	for _, event := range events {
		switch event.Kind {
		case openai.EventReasoningDelta:
			c.logger.Debug("reasoning delta", zap.String("session_id", session.ID), zap.String("text", event.Text))
		case openai.EventMalformed:
			c.logger.Warn("unrecognized stream data shown verbatim",
				zap.String("session_id", session.ID),
				zap.Int("bytes", len(event.Text)),
			)
			session.appendDelta(event.Text)
			c.panel.SetAnswerMarkup(c.renderer.Apply(event.Text))
		case openai.EventContentDelta:
			session.appendDelta(event.Text)
			c.panel.SetAnswerMarkup(c.renderer.Apply(event.Text))
		}
		if c.callbacks.OnEvent != nil {
			c.callbacks.OnEvent(session, event)
		}
		if event.Kind == openai.EventDone {
			return true, true
		}
	}
	return false, true
}

// complete finishes a session normally.
func (c *Controller) complete(session *Session, summary openai.StreamSummary, received int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !session.State().Active() {
		return
	}
	session.setState(StateIdle, nil)
	c.clearLoading(session)
	c.notifyState(session)
	c.logger.Info("session finished",
		zap.String("session_id", session.ID),
		zap.String("model", summary.Model),
		zap.String("finish_reason", summary.FinishReason),
		zap.Int("frames", summary.Frames),
		zap.Int("bytes", received),
		zap.Int("total_tokens", summary.Usage.TotalTokens),
	)
}

// fail records a contained failure; partial output stays on the panel.
func (c *Controller) fail(session *Session, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !session.State().Active() {
		return
	}
	session.setState(StateErrored, err)
	c.clearLoading(session)
	c.notifyState(session)
	c.logger.Error("session failed", zap.String("session_id", session.ID), zap.Error(err))
}

// stopCancelled settles a session whose token was cancelled. Close and Open
// already settle the sessions they cancel; this covers cancellation of the
// caller's context.
func (c *Controller) stopCancelled(session *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !session.State().Active() {
		return
	}
	session.setState(StateAborted, ErrCancelled)
	c.clearLoading(session)
	c.notifyState(session)
}

// ownsPanel reports whether session may still write to the panel. c.mu must be held.
func (c *Controller) ownsPanel(session *Session) bool {
	return c.current == session && !session.cancelled() && session.State().Active()
}

// clearLoading resets the loading indicator if session is still current. c.mu must be held.
func (c *Controller) clearLoading(session *Session) {
	if c.current != session {
		return
	}
	c.loading = false
	c.panel.SetTitle(DefaultTitle)
}

// notifyState reports the session's state to callbacks. c.mu must be held.
func (c *Controller) notifyState(session *Session) {
	if c.callbacks.OnStateChange != nil {
		c.callbacks.OnStateChange(session, session.State())
	}
}
