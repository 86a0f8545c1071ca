package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCitations(t *testing.T) {
	answer := "AI ethics is an active field [Source: AI Ethics in Modern Society | catalog]. " +
		"Practical guidance exists too [Source: Responsible ML Checklist | cases] and the " +
		"first source bears repeating [Source: AI Ethics in Modern Society | catalog]."

	got := ParseCitations(answer)
	assert.Equal(t, []Citation{
		{Title: "AI Ethics in Modern Society", Table: "catalog"},
		{Title: "Responsible ML Checklist", Table: "cases"},
	}, got)
}

func TestParseCitationsWhitespace(t *testing.T) {
	got := ParseCitations("[Source:   Spaced Out   |   finance  ]")
	assert.Equal(t, []Citation{{Title: "Spaced Out", Table: "finance"}}, got)
}

func TestParseCitationsNone(t *testing.T) {
	assert.Nil(t, ParseCitations("no citations here, just prose"))
	assert.Nil(t, ParseCitations("[Source: | catalog] malformed empty title"))
}
