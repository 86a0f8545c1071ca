package retrieval

import (
	"regexp"
	"strings"
)

// Citation is one source reference parsed out of a generated answer.
type Citation struct {
	Title string `json:"title"`
	Table string `json:"table"`
}

// citationPattern matches the inline marker the system prompt asks
// for: [Source: <title> | <table>]. Parsing generated text is fragile
// but providers without structured output leave no better option.
var citationPattern = regexp.MustCompile(`\[Source:\s*([^|\]]+?)\s*\|\s*([^\]]+?)\s*\]`)

// ParseCitations extracts the citation markers from an answer,
// deduplicated in order of first appearance.
func ParseCitations(answer string) []Citation {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	out := make([]Citation, 0, len(matches))
	for _, m := range matches {
		title := strings.TrimSpace(m[1])
		table := strings.TrimSpace(m[2])
		key := title + "|" + table
		if title == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Citation{Title: title, Table: table})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
