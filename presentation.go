package main

import (
	"sync"

	"go.uber.org/zap"
)

// PresentationState is the view model a surface renders. Each push replaces the previous one.
type PresentationState struct {
	ReasoningText    string `json:"thinking"`
	AnswerText       string `json:"analysis"`
	IsReasoningPhase bool   `json:"is_thinking"`
	IsComplete       bool   `json:"is_complete"`
}

// Surface displays analysis progress. Implementations must tolerate being overwritten
// at any rate and must not block the caller for long.
type Surface interface {
	// Open prepares a fresh document for an analysis of source
	Open(title, source string)
	Render(state PresentationState)
	Notify(err *UserError)
	// Saved reports the artifact written for a completed analysis
	Saved(path string)
	Close()
}

// Panel is the orchestrator's handle on a surface for one analysis: create, update, dispose.
// Calls after Dispose are dropped, and a surface failure never propagates to the pipeline.
type Panel struct {
	mu       sync.Mutex
	surface  Surface
	logger   *zap.Logger
	disposed bool
	pushes   int
}

// NewPanel opens a document on surface and returns its handle
func NewPanel(surface Surface, logger *zap.Logger, title, source string) *Panel {
	p := &Panel{surface: surface, logger: logger}
	p.guard("open", func() { surface.Open(title, source) })
	return p
}

// Update pushes state to the surface
func (p *Panel) Update(state PresentationState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.pushes++
	p.guard("render", func() { p.surface.Render(state) })
}

// Fail shows a single error notification
func (p *Panel) Fail(err *UserError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed || err == nil {
		return
	}
	p.guard("notify", func() { p.surface.Notify(err) })
}

// Saved reports the persisted artifact
func (p *Panel) Saved(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.guard("saved", func() { p.surface.Saved(path) })
}

// Pushes returns how many states reached the surface
func (p *Panel) Pushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pushes
}

// Dispose ends the handle. It is safe to call more than once.
// The surface itself stays open; its owner closes it.
func (p *Panel) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposed = true
}

// guard runs a surface call and swallows panics so a broken renderer cannot crash an analysis
func (p *Panel) guard(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Surface call panicked", zap.String("op", op), zap.Any("panic", r))
		}
	}()
	fn()
}
