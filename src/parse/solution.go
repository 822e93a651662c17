package parse

import (
	"regexp"
	"strings"
)

const (
	DefaultThought         = "Solution approach based on efficiency and readability."
	DefaultTimeComplexity  = "O(n) - Linear time complexity because we only iterate through the array once. Each element is processed exactly one time, and the hashmap lookups are O(1) operations."
	DefaultSpaceComplexity = "O(n) - Linear space complexity because we store elements in the hashmap. In the worst case, we might need to store all elements before finding the solution pair."
)

// Solution is a parsed solution response.
type Solution struct {
	Code            string   `json:"code"`
	Thoughts        []string `json:"thoughts"`
	TimeComplexity  string   `json:"time_complexity"`
	SpaceComplexity string   `json:"space_complexity"`
}

// Complexity selects which complexity section to read.
type Complexity int

const (
	Time Complexity = iota
	Space
)

var (
	codeBlock     = regexp.MustCompile("(?s)```(?:\\w+)?\\s*(.*?)```")
	thoughtsBlock = regexp.MustCompile(`(?is)(?:Thoughts:|Key Insights:|Reasoning:|Approach:)(.*?)(?:Time complexity:|\z)`)
	bulletLine    = regexp.MustCompile(`(?:^|\n)\s*(?:[-*•]|\d+\.)\s*(.*)`)
	bigO          = regexp.MustCompile(`(?i)O\([^)]+\)`)

	timeHeading  = regexp.MustCompile(`(?i)time complexity`)
	spaceHeading = regexp.MustCompile(`(?i)space complexity`)

	// a space complexity heading, possibly numbered, bulleted or bold
	spaceHeadingLine = regexp.MustCompile(`^(?:[-*•#]+|\d+[.)])?\s*(?:\*\*)?(?i:space complexity)`)
)

// ParseSolution extracts code, thoughts and both complexities.
func ParseSolution(text string) Solution {
	thoughts := ExtractThoughts(text)
	if len(thoughts) == 0 {
		thoughts = []string{DefaultThought}
	}
	return Solution{
		Code:            ExtractCode(text),
		Thoughts:        thoughts,
		TimeComplexity:  ExtractComplexity(text, Time),
		SpaceComplexity: ExtractComplexity(text, Space),
	}
}

// ExtractCode returns the first fenced block, trimmed, or text unchanged
// when there is none.
func ExtractCode(text string) string {
	if m := codeBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// ExtractThoughts reads the section after a Thoughts/Key Insights/
// Reasoning/Approach heading up to "Time complexity:". Bullet items are
// returned individually; without bullets every non-empty line counts.
func ExtractThoughts(text string) []string {
	m := thoughtsBlock.FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return nil
	}
	section := m[1]

	var out []string
	for _, b := range bulletLine.FindAllStringSubmatch(section, -1) {
		if s := strings.TrimSpace(b[1]); !boldResidue(s) {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, line := range strings.Split(section, "\n") {
		if s := strings.TrimSpace(line); !boldResidue(s) {
			out = append(out, s)
		}
	}
	return out
}

// boldResidue reports whether s is empty or only the "**" closing a bold
// heading.
func boldResidue(s string) bool {
	return strings.Trim(s, "*: ") == ""
}

// ExtractComplexity finds the time or space complexity section. Text with
// no Big-O token gets an "O(n) - " prefix; a bare notation without an
// explanation marker is rejoined as "notation - rest". No section at all
// yields the canned default.
func ExtractComplexity(text string, kind Complexity) string {
	var (
		heading *regexp.Regexp
		stop    func(rest string) bool
		def     string
	)
	switch kind {
	case Space:
		heading, stop, def = spaceHeading, startsWithLetter, DefaultSpaceComplexity
	default:
		heading, stop, def = timeHeading, startsWithSpaceHeading, DefaultTimeComplexity
	}

	section, ok := headingSection(text, heading, stop)
	if !ok {
		return def
	}
	return normalizeComplexity(section)
}

func normalizeComplexity(s string) string {
	s = strings.TrimSpace(s)
	loc := bigO.FindStringIndex(s)
	if loc == nil {
		return "O(n) - " + s
	}
	if strings.Contains(s, "-") || strings.Contains(s, "because") {
		return s
	}
	notation := s[loc[0]:loc[1]]
	rest := strings.TrimSpace(s[:loc[0]] + s[loc[1]:])
	if rest == "" {
		return notation
	}
	return notation + " - " + rest
}

// headingSection returns the text after the first usable heading match:
// colons, bold markers and whitespace are skipped, then whole lines are taken
// until a line break after which stop(rest) holds, or the end of text.
// A blank line before the stop condition holds disqualifies the match.
func headingSection(text string, heading *regexp.Regexp, stop func(rest string) bool) (string, bool) {
	for _, loc := range heading.FindAllStringIndex(text, -1) {
		p := loc[1]
		for p < len(text) && (text[p] == ':' || text[p] == '*' || isSpace(text[p])) {
			p++
		}
		if p >= len(text) {
			continue
		}
		start := p
		for {
			nl := strings.IndexByte(text[p:], '\n')
			if nl < 0 {
				return text[start:], true
			}
			p += nl
			if stop(strings.TrimLeft(text[p+1:], " \t\r\n\f\v")) {
				return text[start:p], true
			}
			// continue only onto a non-empty line
			if p+1 >= len(text) || text[p+1] == '\n' {
				break
			}
			p++
		}
	}
	return "", false
}

func startsWithSpaceHeading(rest string) bool {
	return rest == "" || spaceHeadingLine.MatchString(rest)
}

func startsWithLetter(rest string) bool {
	if rest == "" {
		return true
	}
	c := rest[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
