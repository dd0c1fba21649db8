package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/docexplain/docexplain/internal/assistant"
	"github.com/docexplain/docexplain/internal/markup"
	"github.com/docexplain/docexplain/internal/outline"
	"github.com/docexplain/docexplain/internal/streamjson"
)

// formatStreamJSON emits one JSON line per event instead of answer text.
const formatStreamJSON = "stream-json"

// printWidth wraps terminal markdown in one-shot mode.
const printWidth = 100

// validateOutputFormat rejects unknown ask formats before any work starts.
func validateOutputFormat(format string) error {
	switch format {
	case markup.FormatPlain, markup.FormatTerminal, markup.FormatHTML, formatStreamJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (expected text, markdown, html or stream-json)", format)
	}
}

// stdinIsTerminal reports whether stdin is interactive.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readSelection returns the passage from args, or from stdin when no args are given.
func readSelection(args []string, stdin io.Reader, interactive bool) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if interactive {
		return "", errors.New("no text to explain: pass it as arguments or pipe it on stdin")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// printPanel renders the explanation panel to a writer. Plain text streams as
// it arrives; re-rendered formats are printed once the answer settles.
type printPanel struct {
	// mu guards the fields below.
	mu sync.Mutex
	// out receives the answer.
	out io.Writer
	// stream writes each appended suffix immediately.
	stream bool
	// printed is what has already been written in stream mode.
	printed string
	// markup is the latest answer markup.
	markup string
}

// newPrintPanel constructs a printPanel.
func newPrintPanel(out io.Writer, stream bool) *printPanel {
	return &printPanel{out: out, stream: stream}
}

func (p *printPanel) SetSelectedText(string) {}
func (p *printPanel) SetTitle(string)        {}
func (p *printPanel) Show()                  {}
func (p *printPanel) Hide()                  {}

// SetAnswerMarkup records markup and streams the new suffix in stream mode.
func (p *printPanel) SetAnswerMarkup(markup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markup = markup
	if !p.stream || !strings.HasPrefix(markup, p.printed) {
		return
	}
	fmt.Fprint(p.out, markup[len(p.printed):])
	p.printed = markup
}

// Finish prints the settled answer and terminates the output line.
func (p *printPanel) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stream {
		fmt.Fprint(p.out, p.markup)
	}
	if p.markup != "" && !strings.HasSuffix(p.markup, "\n") {
		fmt.Fprintln(p.out)
	}
}

// runAsk explains selection once and writes the answer to out.
func runAsk(ctx context.Context, rt *runtime, opts *options, selection string, out io.Writer) error {
	var source outline.Provider = outline.Static(nil)
	if opts.File != "" {
		source = outline.FileProvider{Path: opts.File}
	}
	controllerOpts := assistant.Options{
		Transport:      rt.client,
		Outline:        source,
		Model:          rt.model,
		PromptTemplate: rt.cfg.PromptTemplate,
		Logger:         rt.logger,
	}

	var (
		panel  *printPanel
		writer *streamjson.Writer
	)
	if opts.OutputFormat == formatStreamJSON {
		writer = streamjson.NewWriter(out)
		controllerOpts.Callbacks = writer.Callbacks(rt.model)
	} else {
		render, err := markup.ForFormat(opts.OutputFormat, printWidth)
		if err != nil {
			return err
		}
		panel = newPrintPanel(out, opts.OutputFormat == markup.FormatPlain)
		controllerOpts.Panel = panel
		controllerOpts.Markup = render
	}

	controller, err := assistant.NewController(controllerOpts)
	if err != nil {
		return err
	}
	start := time.Now()
	session, err := controller.Open(ctx, selection)
	if err != nil {
		return err
	}
	<-session.Done()

	if writer != nil {
		if err := writer.Write(streamjson.BuildResultEvent(session, time.Since(start))); err != nil {
			return err
		}
		if err := writer.Err(); err != nil {
			return err
		}
	} else {
		panel.Finish()
	}

	switch session.State() {
	case assistant.StateErrored, assistant.StateAborted:
		return session.Err()
	default:
		return nil
	}
}
