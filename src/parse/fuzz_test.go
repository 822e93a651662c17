package parse

import "testing"

var seeds = []string{
	"",
	"```python\nprint(1)\n```",
	"Thoughts:\n- a\n- b\nTime complexity: O(n)\nSpace complexity: O(1)",
	"Time complexity:\n\n\nSpace complexity:",
	"Key Insights: • x\n2. y\nTime complexity: linear",
	"```",
	"Issues identified\n1. bug\n```js\nx```",
	`{"problem_statement":"x","example_input":[1,2]}`,
}

func FuzzParseSolution(f *testing.F) {
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, in string) {
		got := ParseSolution(in)
		if len(got.Thoughts) == 0 {
			t.Fatalf("no thoughts for %q", in)
		}
		if got.TimeComplexity == "" || got.SpaceComplexity == "" {
			t.Fatalf("empty complexity for %q: %+v", in, got)
		}
	})
}

func FuzzParseDebug(f *testing.F) {
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, in string) {
		got := ParseDebug(in)
		if n := len(got.Thoughts); n == 0 || n > 5 {
			t.Fatalf("got %d thoughts for %q", n, in)
		}
		if got.Code == "" {
			t.Fatalf("empty code for %q", in)
		}
	})
}

func FuzzParseProblemInfo(f *testing.F) {
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, in string) {
		info, err := ParseProblemInfo(in)
		if err == nil && info.ProblemStatement == "" {
			t.Fatalf("accepted %q without a statement", in)
		}
	})
}
