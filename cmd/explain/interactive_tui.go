package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/docexplain/docexplain/internal/assistant"
	"github.com/docexplain/docexplain/internal/markup"
	"github.com/docexplain/docexplain/internal/outline"
)

// Pane names used for focus.
const (
	paneDocument = "document"
	panePanel    = "panel"
)

// panelUpdatedMsg signals that the explanation panel changed.
type panelUpdatedMsg struct{}

// panelState is a copy of what the explanation panel displays.
type panelState struct {
	// Selected is the passage being explained.
	Selected string
	// Markup is the rendered answer.
	Markup string
	// Title is the panel heading.
	Title string
	// Visible reports whether the panel is shown.
	Visible bool
}

// tuiPanel implements assistant.Panel for the Bubble Tea loop. The controller
// writes from its session goroutine; the UI reads snapshots after a notify.
type tuiPanel struct {
	// mu guards state.
	mu sync.Mutex
	// state is the latest panel content.
	state panelState
	// notify holds at most one pending wake-up.
	notify chan struct{}
}

// newTUIPanel constructs an empty hidden panel.
func newTUIPanel() *tuiPanel {
	return &tuiPanel{
		state:  panelState{Title: assistant.DefaultTitle},
		notify: make(chan struct{}, 1),
	}
}

// SetSelectedText updates the quoted passage.
func (p *tuiPanel) SetSelectedText(text string) {
	p.update(func(state *panelState) { state.Selected = text })
}

// SetAnswerMarkup updates the rendered answer.
func (p *tuiPanel) SetAnswerMarkup(markup string) {
	p.update(func(state *panelState) { state.Markup = markup })
}

// SetTitle updates the heading.
func (p *tuiPanel) SetTitle(title string) {
	p.update(func(state *panelState) { state.Title = title })
}

// Show makes the panel visible.
func (p *tuiPanel) Show() {
	p.update(func(state *panelState) { state.Visible = true })
}

// Hide hides the panel.
func (p *tuiPanel) Hide() {
	p.update(func(state *panelState) { state.Visible = false })
}

// Snapshot returns the current panel content.
func (p *tuiPanel) Snapshot() panelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// update applies change and wakes the UI without blocking.
func (p *tuiPanel) update(change func(state *panelState)) {
	p.mu.Lock()
	change(&p.state)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// listen waits for the next panel change.
func (p *tuiPanel) listen() tea.Cmd {
	return func() tea.Msg {
		<-p.notify
		return panelUpdatedMsg{}
	}
}

// tuiModel drives the document reader with its explanation side panel.
type tuiModel struct {
	// ctx scopes every session started from the UI.
	ctx context.Context
	// path is the document file name.
	path string
	// model is the current model identifier.
	model string
	// lines holds the document split into lines.
	lines []string
	// cursor is the focused document line.
	cursor int
	// anchor is where the selection started, or -1.
	anchor int
	// controller runs explanation sessions.
	controller *assistant.Controller
	// surface binds the explain and close actions.
	surface assistant.Surface
	// panel receives controller writes.
	panel *tuiPanel
	// panelState is the last panel snapshot shown.
	panelState panelState
	// docView renders the document.
	docView viewport.Model
	// answerView renders the explanation.
	answerView viewport.Model
	// answerAutoScroll keeps the answer pinned to the bottom while streaming.
	answerAutoScroll bool
	// answerRender wraps the answer to the panel width; nil keeps markup as given.
	answerRender *markup.Resizable
	// statusText is the bottom status line.
	statusText string
	// activePane identifies which pane is focused.
	activePane string
	// width tracks the terminal width.
	width int
	// height tracks the terminal height.
	height int
	// quitting indicates a user-requested exit.
	quitting bool
}

// runViewTUI starts the full-screen reader for path.
func runViewTUI(ctx context.Context, rt *runtime, path string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("interactive view requires a TTY")
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width = 120
	}
	render, err := markup.NewResizable(panelWidth(width) - 4)
	if err != nil {
		return err
	}

	panel := newTUIPanel()
	controller, err := assistant.NewController(assistant.Options{
		Transport:      rt.client,
		Outline:        outline.FileProvider{Path: path},
		Panel:          panel,
		Markup:         render.Render,
		Model:          rt.model,
		PromptTemplate: rt.cfg.PromptTemplate,
		Logger:         rt.logger,
	})
	if err != nil {
		return err
	}
	defer controller.Close()

	modelState := newTUIModel(ctx, path, rt.model, string(source), controller, panel)
	modelState.answerRender = render
	program := tea.NewProgram(modelState, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// newTUIModel constructs the initial TUI model state.
func newTUIModel(
	ctx context.Context,
	path string,
	model string,
	document string,
	controller *assistant.Controller,
	panel *tuiPanel,
) *tuiModel {
	document = strings.ReplaceAll(document, "\r\n", "\n")
	modelState := &tuiModel{
		ctx:              ctx,
		path:             path,
		model:            model,
		lines:            strings.Split(strings.TrimRight(document, "\n"), "\n"),
		anchor:           -1,
		controller:       controller,
		panel:            panel,
		panelState:       panel.Snapshot(),
		docView:          viewport.New(20, 10),
		answerView:       viewport.New(20, 10),
		answerAutoScroll: true,
		activePane:       paneDocument,
	}
	modelState.surface = assistant.Surface{
		Controller: controller,
		Selection:  assistant.SelectionFunc(modelState.selection),
	}
	return modelState
}

// Init starts listening for panel updates.
func (m *tuiModel) Init() tea.Cmd {
	return m.panel.listen()
}

// Update handles UI events and panel updates.
func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.applyWindowSize(typed)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	case panelUpdatedMsg:
		m.refreshPanel()
		return m, m.panel.listen()
	}
	return m, nil
}

// View renders the full UI layout.
func (m *tuiModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderBody(), m.renderStatus())
}

// handleKey routes keyboard input.
func (m *tuiModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c", "q":
		m.controller.Close()
		m.quitting = true
		return m, tea.Quit
	case "tab":
		m.togglePane()
		return m, nil
	case "esc":
		if m.panelState.Visible {
			m.surface.CloseAction()
			m.activePane = paneDocument
			m.statusText = "Explanation closed."
			return m, nil
		}
		m.anchor = -1
		m.refreshDocument()
		return m, nil
	case "v":
		m.toggleSelection()
		return m, nil
	case "e", "enter":
		m.explain()
		return m, nil
	case "E":
		m.reask()
		return m, nil
	case "up", "k":
		m.move(-1)
		return m, nil
	case "down", "j":
		m.move(1)
		return m, nil
	case "pgup":
		m.move(-m.docView.Height)
		return m, nil
	case "pgdown":
		m.move(m.docView.Height)
		return m, nil
	case "home", "g":
		m.move(-len(m.lines))
		return m, nil
	case "end", "G":
		m.move(len(m.lines))
		return m, nil
	}
	return m, nil
}

// selection returns the highlighted lines, or "" when nothing is selected.
func (m *tuiModel) selection() string {
	if m.anchor < 0 {
		return ""
	}
	start, end := m.selectionRange()
	return strings.Join(m.lines[start:end+1], "\n")
}

// selectionRange returns the inclusive selected line range.
func (m *tuiModel) selectionRange() (int, int) {
	if m.anchor < m.cursor {
		return m.anchor, m.cursor
	}
	return m.cursor, m.anchor
}

// toggleSelection starts or clears a line selection at the cursor.
func (m *tuiModel) toggleSelection() {
	if m.anchor >= 0 {
		m.anchor = -1
		m.statusText = ""
	} else {
		m.anchor = m.cursor
		m.statusText = "Selecting: move with j/k, explain with e."
	}
	m.refreshDocument()
}

// explain runs the guarded trigger for the current selection.
func (m *tuiModel) explain() {
	session, err := m.surface.Activate(m.ctx)
	switch {
	case errors.Is(err, assistant.ErrBusy):
		m.statusText = "An explanation is still loading; press E to replace it or esc to cancel."
	case err != nil:
		m.statusText = err.Error()
	case session == nil:
		m.statusText = "Nothing selected: press v to start a selection."
	default:
		m.answerAutoScroll = true
		m.statusText = "Explaining..."
	}
}

// reask replaces any in-flight explanation with one for the current selection.
func (m *tuiModel) reask() {
	text := m.selection()
	if strings.TrimSpace(text) == "" {
		m.statusText = "Nothing selected: press v to start a selection."
		return
	}
	if _, err := m.controller.Open(m.ctx, text); err != nil {
		m.statusText = err.Error()
		return
	}
	m.answerAutoScroll = true
	m.statusText = "Explaining..."
}

// move shifts the focused pane by delta lines.
func (m *tuiModel) move(delta int) {
	if m.activePane == panePanel {
		m.answerAutoScroll = false
		if delta > 0 {
			m.answerView.LineDown(delta)
		} else {
			m.answerView.LineUp(-delta)
		}
		return
	}
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor > len(m.lines)-1 {
		m.cursor = len(m.lines) - 1
	}
	m.refreshDocument()
}

// togglePane moves focus between the document and a visible panel.
func (m *tuiModel) togglePane() {
	if m.activePane == paneDocument && m.panelState.Visible {
		m.activePane = panePanel
		return
	}
	m.activePane = paneDocument
}

// refreshPanel pulls the latest panel snapshot into the answer viewport.
func (m *tuiModel) refreshPanel() {
	m.panelState = m.panel.Snapshot()
	if !m.panelState.Visible {
		m.activePane = paneDocument
	}
	if m.controller != nil && !m.controller.Loading() && m.statusText == "Explaining..." {
		m.statusText = ""
		if session := m.controller.Current(); session != nil && session.State() == assistant.StateErrored {
			m.statusText = formatInteractiveError(session.Err())
		}
	}
	m.answerView.SetContent(m.panelState.Markup)
	if m.answerAutoScroll {
		m.answerView.GotoBottom()
	}
	m.applyLayout()
}

// refreshDocument rebuilds the document viewport and keeps the cursor visible.
func (m *tuiModel) refreshDocument() {
	cursorStyle := lipgloss.NewStyle().Bold(true)
	selectedStyle := lipgloss.NewStyle().Reverse(true)
	numberStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	start, end := -1, -1
	if m.anchor >= 0 {
		start, end = m.selectionRange()
	}

	width := len(fmt.Sprint(len(m.lines)))
	var builder strings.Builder
	for index, line := range m.lines {
		marker := "  "
		if index == m.cursor {
			marker = "> "
		}
		text := line
		switch {
		case index >= start && index <= end:
			text = selectedStyle.Render(line)
		case index == m.cursor:
			text = cursorStyle.Render(line)
		}
		builder.WriteString(numberStyle.Render(fmt.Sprintf("%*d ", width, index+1)))
		builder.WriteString(marker)
		builder.WriteString(text)
		if index < len(m.lines)-1 {
			builder.WriteString("\n")
		}
	}
	m.docView.SetContent(builder.String())

	if m.cursor < m.docView.YOffset {
		m.docView.SetYOffset(m.cursor)
	}
	if m.docView.Height > 0 && m.cursor >= m.docView.YOffset+m.docView.Height {
		m.docView.SetYOffset(m.cursor - m.docView.Height + 1)
	}
}

// applyWindowSize records a new window size.
func (m *tuiModel) applyWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height
	m.rewrapAnswer()
	m.applyLayout()
}

// rewrapAnswer re-renders a settled answer when the panel width changes. While
// a session is streaming its next delta is rendered at the new width.
func (m *tuiModel) rewrapAnswer() {
	if m.answerRender == nil {
		return
	}
	changed, err := m.answerRender.SetWidth(panelWidth(m.width) - 4)
	if err != nil {
		m.statusText = formatInteractiveError(err)
		return
	}
	if !changed || m.controller.Loading() {
		return
	}
	session := m.controller.Current()
	if session == nil || !m.panelState.Visible {
		return
	}
	m.panel.SetAnswerMarkup(m.answerRender.Render(session.Answer()))
	m.refreshPanel()
}

// applyLayout sizes the panes for the current window and panel visibility.
func (m *tuiModel) applyLayout() {
	if m.width == 0 {
		return
	}
	bodyHeight := m.height - 2
	if bodyHeight < 6 {
		bodyHeight = 6
	}
	docWidth := m.width
	if m.panelState.Visible {
		sideWidth := panelWidth(m.width)
		docWidth = m.width - sideWidth
		m.answerView.Width = sideWidth - 4
		m.answerView.Height = bodyHeight - 2 - m.quoteHeight()
		if m.answerView.Height < 1 {
			m.answerView.Height = 1
		}
	}
	m.docView.Width = docWidth - 4
	m.docView.Height = bodyHeight - 3
	m.refreshDocument()
}

// quoteHeight is the number of lines used by the quoted selection and its separator.
func (m *tuiModel) quoteHeight() int {
	if m.panelState.Selected == "" {
		return 1
	}
	return len(quoteLines(m.panelState.Selected)) + 2
}

// renderHeader builds the top status line.
func (m *tuiModel) renderHeader() string {
	style := lipgloss.NewStyle().Bold(true)
	header := fmt.Sprintf("docexplain | %s | model %s", m.path, m.model)
	if m.controller.Loading() {
		header += " | answering"
	}
	return style.Render(padRight(header, m.width))
}

// renderBody composes the document and explanation panes.
func (m *tuiModel) renderBody() string {
	doc := m.renderPane(m.path, m.docView.View(), m.docView.Width+4, m.activePane == paneDocument)
	if !m.panelState.Visible {
		return doc
	}
	quoteStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	parts := []string{}
	if m.panelState.Selected != "" {
		parts = append(parts, quoteStyle.Render(strings.Join(quoteLines(m.panelState.Selected), "\n")), "")
	}
	parts = append(parts, m.answerView.View())
	side := m.renderPane(m.panelState.Title, strings.Join(parts, "\n"), m.answerView.Width+4, m.activePane == panePanel)
	return lipgloss.JoinHorizontal(lipgloss.Top, doc, side)
}

// renderPane formats a bordered pane with a title.
func (m *tuiModel) renderPane(title string, content string, width int, focused bool) string {
	style := lipgloss.NewStyle().Border(m.border()).Padding(0, 1)
	if focused {
		style = style.BorderForeground(lipgloss.Color("39"))
	}
	header := fmt.Sprintf("[%s]", title)
	pane := lipgloss.JoinVertical(lipgloss.Left, header, content)
	return style.Width(width - 2).Render(pane)
}

// renderStatus returns the bottom status line.
func (m *tuiModel) renderStatus() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	text := m.statusText
	if text == "" {
		text = "v: select | j/k: move | e: explain | E: re-ask | esc: close | tab: focus | q: quit"
	}
	return style.Render(padRight(text, m.width))
}

// border defines a simple ASCII border to avoid Unicode dependencies.
func (m *tuiModel) border() lipgloss.Border {
	return lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}
}

// panelWidth sizes the explanation panel for a terminal width.
func panelWidth(total int) int {
	width := total * 2 / 5
	if width < 30 {
		width = 30
	}
	if width > 80 {
		width = 80
	}
	return width
}

// quoteLines trims a selection to a short quoted excerpt.
func quoteLines(selection string) []string {
	lines := strings.Split(selection, "\n")
	if len(lines) > 3 {
		lines = append(lines[:3:3], "...")
	}
	for index, line := range lines {
		lines[index] = "> " + line
	}
	return lines
}

// formatInteractiveError shortens session failures for the status line.
func formatInteractiveError(err error) string {
	if err == nil {
		return ""
	}
	message := strings.ReplaceAll(err.Error(), "\n", " ")
	if runes := []rune(message); len(runes) > 160 {
		message = string(runes[:157]) + "..."
	}
	return "Explanation failed: " + message
}

// padRight pads a string with spaces to the target width.
func padRight(value string, width int) string {
	runes := []rune(value)
	if len(runes) >= width {
		return value
	}
	return value + strings.Repeat(" ", width-len(runes))
}
