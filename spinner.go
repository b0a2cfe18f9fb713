package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner displays an animated waiting line with elapsed time
// Example: ✽ Waiting for qwen2.5-coder:7b… (12s · ↑ 1.2k tokens)
type Spinner struct {
	w         io.Writer
	message   string
	frames    []string
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
	mu        sync.Mutex
	theme     *Theme
	startTime time.Time
	tokens    int
	running   bool
}

// NewSpinner creates a spinner writing to w
func NewSpinner(w io.Writer, message string, theme *Theme) *Spinner {
	return &Spinner{
		w:        w,
		message:  message,
		frames:   []string{"✽", "✻", "✼", "✽", "✻", "✼"},
		interval: 150 * time.Millisecond,
		theme:    theme,
	}
}

// Start begins the animation
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.startTime = time.Now()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		i := 0
		for {
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r\033[K%s", s.formatLine(s.frames[i], time.Since(s.startTime)))
			s.mu.Unlock()
			i = (i + 1) % len(s.frames)

			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Spinner) formatLine(frame string, elapsed time.Duration) string {
	parts := []string{fmt.Sprintf("%ds", int(elapsed.Seconds()))}
	if s.tokens > 0 {
		parts = append(parts, fmt.Sprintf("↑ %s tokens", formatTokenCount(s.tokens)))
	}
	return fmt.Sprintf("%s %s %s", s.theme.Title.Render(frame), s.message, s.theme.Dim.Render("("+joinParts(parts)+")"))
}

// SetTokens shows a token count next to the elapsed time
func (s *Spinner) SetTokens(tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
}

// Stop halts the animation and clears the line. Safe to call when not running.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	<-s.done
	s.mu.Lock()
	fmt.Fprint(s.w, "\r\033[K")
	s.mu.Unlock()
}

// formatTokenCount formats token count with k suffix for thousands
func formatTokenCount(tokens int) string {
	if tokens >= 1000 {
		return fmt.Sprintf("%.1fk", float64(tokens)/1000)
	}
	return fmt.Sprintf("%d", tokens)
}

// joinParts joins string parts with " · "
func joinParts(parts []string) string {
	result := ""
	for i, p := range parts {
		if i > 0 {
			result += " · "
		}
		result += p
	}
	return result
}
