package parse

import (
	"regexp"
	"strings"
)

const (
	DebugCodePlaceholder = "// Debug mode - see analysis below"
	DebugThought         = "Debug analysis based on your screenshots"
	DebugComplexity      = "N/A - Debug mode"

	maxDebugThoughts = 5
)

// Debug is a parsed debugging response.
type Debug struct {
	Code            string   `json:"code"`
	DebugAnalysis   string   `json:"debug_analysis"`
	Thoughts        []string `json:"thoughts"`
	TimeComplexity  string   `json:"time_complexity"`
	SpaceComplexity string   `json:"space_complexity"`
}

var (
	debugCodeBlock = regexp.MustCompile("(?s)```(?:[a-zA-Z]+)?(.*?)```")
	debugBullet    = regexp.MustCompile(`(?:^|\n)[ ]*(?:[-*•]|\d+\.)[ ]+([^\n]+)`)

	// Applied in order, first occurrence only, to responses without
	// markdown headers.
	debugHeaders = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`(?i)issues identified|problems found|bugs found`), "## Issues Identified"},
		{regexp.MustCompile(`(?i)code improvements|improvements|suggested changes`), "## Code Improvements"},
		{regexp.MustCompile(`(?i)optimizations|performance improvements`), "## Optimizations"},
		{regexp.MustCompile(`(?i)explanation|detailed analysis`), "## Explanation"},
	}
)

// ParseDebug extracts the code, the normalized analysis and up to five
// bullet thoughts. Complexities are not analysed in debug mode.
func ParseDebug(text string) Debug {
	code := DebugCodePlaceholder
	if m := debugCodeBlock.FindStringSubmatch(text); m != nil {
		if c := strings.TrimSpace(m[1]); c != "" {
			code = c
		}
	}

	analysis := NormalizeDebugHeaders(text)

	var thoughts []string
	for _, m := range debugBullet.FindAllStringSubmatch(analysis, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			thoughts = append(thoughts, s)
		}
		if len(thoughts) == maxDebugThoughts {
			break
		}
	}
	if len(thoughts) == 0 {
		thoughts = []string{DebugThought}
	}

	return Debug{
		Code:            code,
		DebugAnalysis:   analysis,
		Thoughts:        thoughts,
		TimeComplexity:  DebugComplexity,
		SpaceComplexity: DebugComplexity,
	}
}

// NormalizeDebugHeaders turns the first plain-text mention of each known
// section into a markdown header when the text has no headers of its own.
func NormalizeDebugHeaders(text string) string {
	if strings.Contains(text, "# ") {
		return text
	}
	for _, h := range debugHeaders {
		text = replaceFirst(h.re, text, h.repl)
	}
	return text
}

func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + repl + s[loc[1]:]
}
