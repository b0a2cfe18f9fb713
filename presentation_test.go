package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingSurface captures every call for assertions
type recordingSurface struct {
	mu      sync.Mutex
	opened  []string
	states  []PresentationState
	errors  []*UserError
	saved   []string
	closed  int
	explode bool
	// onRender runs before a state is recorded
	onRender func(PresentationState)
}

func (r *recordingSurface) Open(title, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, title)
}

func (r *recordingSurface) Render(state PresentationState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.explode {
		panic("renderer gone")
	}
	if r.onRender != nil {
		r.onRender(state)
	}
	r.states = append(r.states, state)
}

func (r *recordingSurface) Notify(err *UserError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recordingSurface) Saved(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, path)
}

func (r *recordingSurface) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
}

func (r *recordingSurface) snapshot() ([]PresentationState, []*UserError, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PresentationState(nil), r.states...), append([]*UserError(nil), r.errors...), append([]string(nil), r.saved...)
}

func TestPanelLifecycle(t *testing.T) {
	s := &recordingSurface{}
	p := NewPanel(s, zap.NewNop(), "Driver.c", "int x;")

	p.Update(PresentationState{AnswerText: "a"})
	p.Update(PresentationState{AnswerText: "ab", IsComplete: true})
	p.Dispose()
	p.Dispose()
	p.Update(PresentationState{AnswerText: "late"})
	p.Fail(ErrEmptyResponse())
	p.Saved("/tmp/x.md")

	states, errs, saved := s.snapshot()
	assert.Equal(t, []string{"Driver.c"}, s.opened)
	require.Len(t, states, 2)
	assert.Equal(t, "ab", states[1].AnswerText)
	assert.Empty(t, errs)
	assert.Empty(t, saved)
	assert.Equal(t, 2, p.Pushes())
	assert.Equal(t, 0, s.closed, "dispose must not close the surface")
}

func TestPanelSurvivesRendererPanic(t *testing.T) {
	s := &recordingSurface{explode: true}
	p := NewPanel(s, zap.NewNop(), "x.c", "")

	assert.NotPanics(t, func() {
		p.Update(PresentationState{AnswerText: "boom"})
	})
	assert.Equal(t, 1, p.Pushes())
}
