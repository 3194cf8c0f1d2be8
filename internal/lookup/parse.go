package lookup

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("```(?:json|JSON)?")

func stripCodeFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

// extractElements pulls the JSON array out of model text. Fences are
// stripped first; if the remainder does not parse, the span from the first
// '[' to the last ']' is tried. Anything that still fails, or parses to a
// non-array, yields no elements.
func extractElements(text string) []any {
	clean := stripCodeFences(text)
	var parsed any
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		first := strings.Index(clean, "[")
		last := strings.LastIndex(clean, "]")
		if first == -1 || last <= first {
			return nil
		}
		parsed = nil
		if err := json.Unmarshal([]byte(clean[first:last+1]), &parsed); err != nil {
			return nil
		}
	}
	elems, ok := parsed.([]any)
	if !ok {
		return nil
	}
	return elems
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
