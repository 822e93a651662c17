// Package appstate holds the per-process view and problem state shared by
// the pipeline, the event loop and the shell integrations.
package appstate

import (
	"sync"

	"shadow-ai/src/parse"
	"shadow-ai/src/store"
)

type View string

const (
	ViewQueue     View = "queue"
	ViewSolutions View = "solutions"
	ViewDebug     View = "debug"
)

// State is safe for concurrent use.
type State struct {
	mu          sync.RWMutex
	view        View
	problem     *parse.ProblemInfo
	hasDebugged bool
	onView      []func(View)
}

func New() *State {
	return &State{view: ViewQueue}
}

func (s *State) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// SetView changes the view and runs the OnViewChange hooks when it differs.
func (s *State) SetView(v View) {
	s.mu.Lock()
	changed := s.view != v
	s.view = v
	hooks := append([]func(View){}, s.onView...)
	s.mu.Unlock()
	if changed {
		for _, fn := range hooks {
			fn(v)
		}
	}
}

// OnViewChange registers fn to run after every view change.
func (s *State) OnViewChange(fn func(View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onView = append(s.onView, fn)
}

// ActiveKind is the queue new screenshots go to: primary in the queue
// view, extra otherwise.
func (s *State) ActiveKind() store.Kind {
	if s.View() == ViewQueue {
		return store.Primary
	}
	return store.Extra
}

func (s *State) ProblemInfo() (parse.ProblemInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.problem == nil {
		return parse.ProblemInfo{}, false
	}
	return *s.problem, true
}

func (s *State) SetProblemInfo(p parse.ProblemInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problem = &p
}

func (s *State) ClearProblemInfo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problem = nil
}

func (s *State) HasDebugged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasDebugged
}

func (s *State) SetHasDebugged(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasDebugged = v
}

// Reset clears the problem and debug flag and returns to the queue view.
func (s *State) Reset() {
	s.mu.Lock()
	s.problem = nil
	s.hasDebugged = false
	s.mu.Unlock()
	s.SetView(ViewQueue)
}
