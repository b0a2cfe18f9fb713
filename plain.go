package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

// PlainSurface streams an analysis to a line-oriented writer such as a pipe or a dumb terminal.
// Text is printed incrementally: each Render writes only what was not printed before.
type PlainSurface struct {
	mu      sync.Mutex
	w       io.Writer
	theme   *Theme
	model   string
	color   bool
	spinner *Spinner

	reasoningPrinted int
	answerPrinted    int
	answerStarted    bool
}

// NewPlainSurface writes to w. color enables ANSI styling and the spinner.
func NewPlainSurface(w io.Writer, theme *Theme, model string, color bool) *PlainSurface {
	return &PlainSurface{w: w, theme: theme, model: model, color: color}
}

func (s *PlainSurface) Open(title, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reasoningPrinted, s.answerPrinted, s.answerStarted = 0, 0, false
	header := fmt.Sprintf("Analyzing %s (%d characters) with %s", title, runeLen(source), shortModelName(s.model))
	if s.color {
		header = s.theme.Title.Render(header)
	}
	fmt.Fprintln(s.w, header)

	if s.color {
		s.spinner = NewSpinner(s.w, "Waiting for "+shortModelName(s.model)+"…", s.theme)
		s.spinner.SetTokens(EstimateTokensOrZero(source))
		s.spinner.Start()
	}
}

func (s *PlainSurface) Render(state PresentationState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.ReasoningText == "" && state.AnswerText == "" && !state.IsComplete {
		return
	}
	s.stopSpinner()

	if n := len(state.ReasoningText); n > s.reasoningPrinted {
		s.write(state.ReasoningText[s.reasoningPrinted:], true)
		s.reasoningPrinted = n
	}

	if n := len(state.AnswerText); n > s.answerPrinted {
		if !s.answerStarted {
			if s.reasoningPrinted > 0 {
				fmt.Fprint(s.w, "\n\n")
			}
			s.answerStarted = true
		}
		s.write(state.AnswerText[s.answerPrinted:], false)
		s.answerPrinted = n
	}

	if state.IsComplete && (s.reasoningPrinted > 0 || s.answerPrinted > 0) {
		fmt.Fprintln(s.w)
	}
}

func (s *PlainSurface) write(text string, reasoning bool) {
	if reasoning && s.color {
		// Styled per line so a partial write never leaves the terminal dimmed
		lines := strings.Split(text, "\n")
		for i, line := range lines {
			if i > 0 {
				fmt.Fprint(s.w, "\n")
			}
			if line != "" {
				fmt.Fprint(s.w, ansiDim+line+ansiReset)
			}
		}
		return
	}
	fmt.Fprint(s.w, text)
}

func (s *PlainSurface) Notify(err *UserError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSpinner()
	fmt.Fprint(s.w, FormatUserError(err))
}

func (s *PlainSurface) Saved(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mark := "✓"
	if s.color {
		mark = s.theme.Success.Render(mark)
	}
	fmt.Fprintf(s.w, "%s Analysis saved to %s\n", mark, path)
}

func (s *PlainSurface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSpinner()
}

func (s *PlainSurface) stopSpinner() {
	if s.spinner != nil {
		s.spinner.Stop()
		s.spinner = nil
	}
}
