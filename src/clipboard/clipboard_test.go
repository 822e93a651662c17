package clipboard

import (
	"errors"
	"testing"

	"shadow-ai/src/messages"
	"shadow-ai/src/parse"
)

func TestWrite(t *testing.T) {
	// Requires clipboard access; only check that it does not panic.
	if err := Init(); err != nil {
		t.Logf("Clipboard unavailable (expected in headless environment): %v", err)
		return
	}
	if err := Write("test text"); err != nil {
		t.Logf("Failed to write to clipboard: %v", err)
	}
}

func TestCopierCopiesSolutionCode(t *testing.T) {
	var got []string
	c := NewCopier(func(s string) error {
		got = append(got, s)
		return nil
	})

	if !c.handle(messages.SolutionReady{Solution: parse.Solution{Code: "  print(1)\n"}}) {
		t.Fatal("expected solution code to be copied")
	}
	if c.handle(messages.DebugReady{Debug: parse.Debug{Code: parse.DebugCodePlaceholder}}) {
		t.Error("placeholder debug code must not be copied")
	}
	if c.handle(messages.ProcessingStarted{}) {
		t.Error("unrelated events must be ignored")
	}
	if len(got) != 1 || got[0] != "print(1)" {
		t.Errorf("copied %q", got)
	}
}

func TestCopierReportsWriteFailure(t *testing.T) {
	c := NewCopier(func(string) error { return errors.New("denied") })
	if c.handle(messages.SolutionReady{Solution: parse.Solution{Code: "x"}}) {
		t.Error("expected failure to be reported")
	}
}
