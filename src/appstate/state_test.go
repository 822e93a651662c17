package appstate

import (
	"testing"

	"shadow-ai/src/parse"
	"shadow-ai/src/store"
)

func TestViewAndActiveKind(t *testing.T) {
	s := New()
	if s.View() != ViewQueue || s.ActiveKind() != store.Primary {
		t.Fatalf("Expected queue view with primary kind, got %s/%s", s.View(), s.ActiveKind())
	}

	var seen []View
	s.OnViewChange(func(v View) { seen = append(seen, v) })
	s.SetView(ViewSolutions)
	s.SetView(ViewSolutions)
	if s.ActiveKind() != store.Extra {
		t.Errorf("Expected extra kind in solutions view")
	}
	if len(seen) != 1 || seen[0] != ViewSolutions {
		t.Errorf("Expected one hook call, got %v", seen)
	}
}

func TestProblemInfoAndReset(t *testing.T) {
	s := New()
	if _, ok := s.ProblemInfo(); ok {
		t.Fatal("Expected no problem info initially")
	}
	s.SetProblemInfo(parse.ProblemInfo{ProblemStatement: "p"})
	s.SetHasDebugged(true)
	s.SetView(ViewDebug)

	if p, ok := s.ProblemInfo(); !ok || p.ProblemStatement != "p" {
		t.Errorf("Expected stored problem, got %+v %v", p, ok)
	}

	s.Reset()
	if _, ok := s.ProblemInfo(); ok {
		t.Error("Expected problem cleared by Reset")
	}
	if s.HasDebugged() {
		t.Error("Expected hasDebugged cleared by Reset")
	}
	if s.View() != ViewQueue {
		t.Errorf("Expected queue view after Reset, got %s", s.View())
	}
}
