package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// Rows taken by the header, status line and footer
const chromeHeight = 4

// Messages delivered from the pipeline goroutine through tea.Program.Send
type openMsg struct {
	title string
	chars int
}

type stateMsg struct {
	state PresentationState
}

type errorMsg struct {
	err *UserError
}

type savedMsg struct {
	path string
}

type closeMsg struct{}

// tuiModel is the bubbletea model for the live analysis document
type tuiModel struct {
	theme    *Theme
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	// glamourStyle is a glamour standard style name ("dark", "light", "notty")
	glamourStyle string

	model   string
	title   string
	chars   int
	state   PresentationState
	err     *UserError
	saved   string
	runs    int
	started time.Time
	elapsed time.Duration
	tokens  int

	cancel context.CancelFunc

	width  int
	height int
	ready  bool
}

func newTUIModel(theme *Theme, model string, cancel context.CancelFunc) tuiModel {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"✽", "✻", "✼", "✽", "✻", "✼"},
		FPS:    150 * time.Millisecond,
	}
	s.Style = theme.Title

	return tuiModel{
		theme:        theme,
		spinner:      s,
		viewport:     viewport.New(80, 20),
		glamourStyle: "dark",
		model:        model,
		cancel:       cancel,
		width:        80,
		height:       24,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 3)
		m.renderer = m.newRenderer()
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if m.running() {
			m.elapsed = time.Since(m.started)
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case openMsg:
		m.title, m.chars = msg.title, msg.chars
		m.state = PresentationState{}
		m.err, m.saved = nil, ""
		m.started, m.elapsed, m.tokens = time.Now(), 0, 0
		m.runs++
		m.refresh()
		m.viewport.GotoTop()

	case stateMsg:
		m.state = msg.state
		m.elapsed = time.Since(m.started)
		if msg.state.IsComplete {
			m.tokens = EstimateTokensOrZero(msg.state.ReasoningText + msg.state.AnswerText)
		} else {
			// approximate while streaming, exact once complete
			m.tokens = (len(msg.state.ReasoningText) + len(msg.state.AnswerText)) / 4
		}
		m.refresh()

	case errorMsg:
		m.err = msg.err
		m.state.IsComplete = true
		m.refresh()

	case savedMsg:
		m.saved = msg.path

	case closeMsg:
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

func (m tuiModel) running() bool {
	return m.runs > 0 && !m.state.IsComplete
}

// refresh rebuilds the document and follows the tail unless the user scrolled up
func (m *tuiModel) refresh() {
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(m.document())
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *tuiModel) newRenderer() *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.glamourStyle),
		glamour.WithWordWrap(max(m.width-4, 20)),
	)
	if err != nil {
		return nil
	}
	return r
}

// document is the viewport body: reasoning dimmed, then the answer.
// The answer is shown raw while streaming and rendered as markdown once complete.
func (m tuiModel) document() string {
	var b strings.Builder
	wrapWidth := max(m.width-2, 20)

	if m.state.ReasoningText != "" {
		b.WriteString(m.theme.Dim.Render("Thinking"))
		b.WriteString("\n")
		for _, line := range wrapText(m.state.ReasoningText, wrapWidth) {
			b.WriteString(m.theme.Reasoning.Render(line))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.state.AnswerText != "" {
		answer := m.state.AnswerText
		if m.state.IsComplete {
			if m.renderer != nil {
				if out, err := m.renderer.Render(answer); err == nil {
					b.WriteString(out)
					return b.String()
				}
			}
			answer = stripMarkdown(answer)
		}
		for _, line := range wrapText(answer, wrapWidth) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (m tuiModel) View() string {
	if !m.ready {
		return m.statusLine() + "\n"
	}

	var b strings.Builder
	header := m.theme.Title.Render("vantage")
	if m.title != "" {
		header += " · " + m.title
	}
	header += m.theme.Dim.Render(fmt.Sprintf(" · %s", shortModelName(m.model)))
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m tuiModel) statusLine() string {
	parts := []string{fmt.Sprintf("%ds", int(m.elapsed.Seconds()))}
	if m.tokens > 0 {
		parts = append(parts, fmt.Sprintf("↓ %s tokens", formatTokenCount(m.tokens)))
	}
	stats := m.theme.Dim.Render("(" + joinParts(parts) + ")")

	switch {
	case m.runs == 0:
		return m.spinner.View() + " Preparing analysis…"
	case m.err != nil:
		return m.theme.Error.Render("✗ "+m.err.Message) + " " + stats
	case m.state.IsComplete:
		return m.theme.Success.Render("✓ Analysis complete") + " " + stats
	case m.state.IsReasoningPhase:
		return m.spinner.View() + " Thinking… " + stats
	case m.state.AnswerText != "":
		return m.spinner.View() + " Analyzing… " + stats
	default:
		return m.spinner.View() + fmt.Sprintf(" Waiting for %s… ", shortModelName(m.model)) + stats
	}
}

func (m tuiModel) footer() string {
	var parts []string
	if m.err != nil && m.err.Suggestion != "" {
		parts = append(parts, m.theme.Warning.Render(firstLine(m.err.Suggestion)))
	}
	if m.saved != "" {
		parts = append(parts, m.theme.Success.Render("Saved ")+m.saved)
	}
	parts = append(parts, m.theme.Dim.Render("↑/↓ scroll · q quit"))
	return joinParts(parts)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// TUISurface forwards presentation calls into a running bubbletea program
type TUISurface struct {
	program *tea.Program
}

// NewTUI creates the program and its surface. Quitting the program calls cancel.
func NewTUI(theme *Theme, model string, cancel context.CancelFunc) (*tea.Program, *TUISurface) {
	p := tea.NewProgram(newTUIModel(theme, model, cancel), tea.WithAltScreen(), tea.WithMouseCellMotion())
	return p, &TUISurface{program: p}
}

func (s *TUISurface) Open(title, source string) {
	s.program.Send(openMsg{title: title, chars: runeLen(source)})
}

func (s *TUISurface) Render(state PresentationState) {
	s.program.Send(stateMsg{state: state})
}

func (s *TUISurface) Notify(err *UserError) {
	s.program.Send(errorMsg{err: err})
}

func (s *TUISurface) Saved(path string) {
	s.program.Send(savedMsg{path: path})
}

func (s *TUISurface) Close() {
	s.program.Send(closeMsg{})
}
