package parse

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}```"))
	assert.Equal(t, "plain", StripFences("  plain \n"))
}

func TestParseProblemInfo(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    ProblemInfo
		wantErr bool
	}{
		{
			name: "Fenced",
			in:   "```json\n{\"problem_statement\":\"Two sum\",\"constraints\":\"n <= 10^4\",\"example_input\":[2,7,11,15],\"example_output\":9}\n```",
			want: ProblemInfo{ProblemStatement: "Two sum", Constraints: "n <= 10^4", ExampleInput: "[2,7,11,15]", ExampleOutput: "9"},
		},
		{
			name: "WrappedInProse",
			in:   `Here you go: {"problem_statement":"Reverse a list"} hope it helps`,
			want: ProblemInfo{ProblemStatement: "Reverse a list"},
		},
		{
			name: "NestedObject",
			in:   `{"problem_statement":"p","example_input":{"nums":[1],"target":true}}`,
			want: ProblemInfo{ProblemStatement: "p", ExampleInput: `{"nums":[1],"target":true}`},
		},
		{name: "NotJSON", in: "I could not read the screenshot", wantErr: true},
		{name: "MissingStatement", in: `{"constraints":"c"}`, wantErr: true},
		{name: "Empty", in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProblemInfo(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidProblemJSON))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"WithLanguage", "Here:\n```python\ndef f():\n    return 1\n```\nDone", "def f():\n    return 1"},
		{"WithoutLanguage", "```\ncode\n```", "code"},
		{"FirstBlockWins", "```go\na\n```\n```go\nb\n```", "a"},
		{"NoFence", "just text\n", "just text\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.in))
		})
	}
}

func TestExtractThoughts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"DashBullets", "Thoughts:\n- First idea\n- Second idea\nTime complexity: O(n)", []string{"First idea", "Second idea"}},
		{"NumberedToEnd", "Key Insights:\n1. Use a map\n2. One pass", []string{"Use a map", "One pass"}},
		{"DotBullets", "reasoning:\n• a\n• b\n", []string{"a", "b"}},
		{"PlainLines", "Approach: We sort first.\nThen two pointers.\nTime complexity: O(n log n)", []string{"We sort first.", "Then two pointers."}},
		{"NoHeading", "nothing to see", nil},
		{"BoldHeadings", "**Key Insights:**\n1. a\n2. b\n\n**Time complexity:** O(n)", []string{"a", "b"}},
		{"StarBullets", "Thoughts:\n* first\n* second\n", []string{"first", "second"}},
		{"BoldPlainLines", "**Approach:**\nSort first.\n**", []string{"Sort first."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractThoughts(tt.in))
		})
	}
}

func TestExtractComplexity(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind Complexity
		want string
	}{
		{"NotationAndBecause", "Time complexity: O(n log n) because of sorting\nSpace complexity: O(1)", Time, "O(n log n) because of sorting"},
		{"BareNotationAtEnd", "Time complexity: O(n log n) because of sorting\nSpace complexity: O(1)", Space, "O(1)"},
		{"NoNotation", "Time complexity: linear\n\nSpace complexity: constant\n", Time, "O(n) - linear"},
		{"NoNotationSpace", "Time complexity: linear\n\nSpace complexity: constant\n", Space, "O(n) - constant"},
		{"NotationRejoined", "Time complexity: O(n)\nwe scan once\nSpace complexity: O(n) - map", Time, "O(n) - we scan once"},
		{"DashKept", "Time complexity: O(n)\nwe scan once\nSpace complexity: O(n) - map", Space, "O(n) - map"},
		{"SpaceStopsAtLetter", "Space complexity: O(n)\n1. map\nNext section", Space, "O(n) - 1. map"},
		{"BlankLineBeforeOtherText", "Time complexity: O(n)\n\nSomething else", Time, DefaultTimeComplexity},
		{"Missing", "nothing here", Time, DefaultTimeComplexity},
		{"MissingSpace", "nothing here", Space, DefaultSpaceComplexity},
		{"HeadingOnly", "Time complexity:", Time, DefaultTimeComplexity},
		{"BoldHeadings", "**Time complexity:** O(n) because x\n**Space complexity:** O(1) because y", Time, "O(n) because x"},
		{"BoldHeadingsSpace", "**Time complexity:** O(n) because x\n**Space complexity:** O(1) because y", Space, "O(1) because y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractComplexity(tt.in, tt.kind))
		})
	}
}

func TestParseSolution(t *testing.T) {
	resp := strings.Join([]string{
		"1. Code:",
		"```python",
		"def two_sum(nums, target):",
		"    seen = {}",
		"```",
		"2. Key Insights:",
		"- Use a hashmap",
		"- Single pass",
		"3. Time complexity: O(n) because each element is visited once.",
		"4. Space complexity: O(n) because of the hashmap.",
	}, "\n")

	got := ParseSolution(resp)
	assert.Equal(t, "def two_sum(nums, target):\n    seen = {}", got.Code)
	assert.Equal(t, []string{"Use a hashmap", "Single pass"}, got.Thoughts)
	assert.Equal(t, "O(n) because each element is visited once.", got.TimeComplexity)
	assert.Equal(t, "O(n) because of the hashmap.", got.SpaceComplexity)
}

func TestParseSolutionFallbacks(t *testing.T) {
	got := ParseSolution("print(1)")
	assert.Equal(t, "print(1)", got.Code)
	assert.Equal(t, []string{DefaultThought}, got.Thoughts)
	assert.Equal(t, DefaultTimeComplexity, got.TimeComplexity)
	assert.Equal(t, DefaultSpaceComplexity, got.SpaceComplexity)
}

func TestParseDebug(t *testing.T) {
	resp := "Issues identified:\n- Off by one in loop\n- Missing null check\nImprovements:\n```go\nfmt.Println(1)\n```\nExplanation: the loop bound was wrong."

	got := ParseDebug(resp)
	assert.Equal(t, "fmt.Println(1)", got.Code)
	assert.Equal(t, "## Issues Identified:\n- Off by one in loop\n- Missing null check\n## Code Improvements:\n```go\nfmt.Println(1)\n```\n## Explanation: the loop bound was wrong.", got.DebugAnalysis)
	assert.Equal(t, []string{"Off by one in loop", "Missing null check"}, got.Thoughts)
	assert.Equal(t, DebugComplexity, got.TimeComplexity)
	assert.Equal(t, DebugComplexity, got.SpaceComplexity)
}

func TestParseDebugKeepsExistingHeaders(t *testing.T) {
	resp := "### Issues Identified\nexplanation follows"
	assert.Equal(t, resp, ParseDebug(resp).DebugAnalysis)
}

func TestParseDebugCapsThoughts(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 7; i++ {
		b.WriteString("- point\n")
	}
	assert.Len(t, ParseDebug(b.String()).Thoughts, 5)
}

func TestParseDebugFallbacks(t *testing.T) {
	got := ParseDebug("Looks fine to me.")
	assert.Equal(t, DebugCodePlaceholder, got.Code)
	assert.Equal(t, []string{DebugThought}, got.Thoughts)
	assert.Equal(t, "Looks fine to me.", got.DebugAnalysis)
}
