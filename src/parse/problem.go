// Package parse turns free-text model output into typed records. Every
// function is pure; none of them fail on odd input except ParseProblemInfo.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidProblemJSON = errors.New("response is not valid problem JSON")

var fenceMarkers = regexp.MustCompile("```json|```")

// ProblemInfo is the problem extracted from the screenshots.
type ProblemInfo struct {
	ProblemStatement string `json:"problem_statement"`
	Constraints      string `json:"constraints,omitempty"`
	ExampleInput     string `json:"example_input,omitempty"`
	ExampleOutput    string `json:"example_output,omitempty"`
}

// StripFences removes markdown code-fence markers and surrounding space.
func StripFences(text string) string {
	return strings.TrimSpace(fenceMarkers.ReplaceAllString(text, ""))
}

// ParseProblemInfo decodes the extraction response. The JSON may be fenced
// or wrapped in prose; optional fields that are not strings are rendered
// as compact JSON.
func ParseProblemInfo(text string) (ProblemInfo, error) {
	cleaned := StripFences(text)
	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}")
		if start < 0 || end <= start {
			return ProblemInfo{}, fmt.Errorf("%w: %v", ErrInvalidProblemJSON, err)
		}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &raw); err != nil {
			return ProblemInfo{}, fmt.Errorf("%w: %v", ErrInvalidProblemJSON, err)
		}
	}

	info := ProblemInfo{
		ProblemStatement: strings.TrimSpace(render(raw["problem_statement"])),
		Constraints:      render(raw["constraints"]),
		ExampleInput:     render(raw["example_input"]),
		ExampleOutput:    render(raw["example_output"]),
	}
	if info.ProblemStatement == "" {
		return ProblemInfo{}, fmt.Errorf("%w: missing problem_statement", ErrInvalidProblemJSON)
	}
	return info, nil
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
