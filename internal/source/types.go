// Package source provides the content source client and the extractor that
// pages records out of a logical database with retry, circuit breaking, and
// rate-limit pacing.
package source

import "time"

// Record is an opaque paginated unit from the content source. Immutable
// once fetched.
type Record struct {
	Object         string              `json:"object"`
	ID             string              `json:"id"`
	CreatedTime    time.Time           `json:"created_time"`
	LastEditedTime time.Time           `json:"last_edited_time"`
	URL            string              `json:"url,omitempty"`
	Properties     map[string]Property `json:"properties"`
}

// Property is a typed property value on a record. Type selects which of the
// value fields is populated, mirroring the source API's tagged union.
type Property struct {
	Type        string         `json:"type"`
	Title       []RichText     `json:"title,omitempty"`
	RichText    []RichText     `json:"rich_text,omitempty"`
	Select      *SelectOption  `json:"select,omitempty"`
	MultiSelect []SelectOption `json:"multi_select,omitempty"`
	Date        *DateValue     `json:"date,omitempty"`
	Number      *float64       `json:"number,omitempty"`
	URL         string         `json:"url,omitempty"`
	People      []Person       `json:"people,omitempty"`
}

// RichText is one rich text fragment.
type RichText struct {
	Type      string `json:"type"`
	PlainText string `json:"plain_text"`
	Href      string `json:"href,omitempty"`
}

// SelectOption is a select or multi-select choice.
type SelectOption struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// DateValue is a date property value. Only Start matters for row mapping.
type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// Person is a people property entry.
type Person struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Filter narrows a database query. ModifiedAfter supports incremental sync.
type Filter struct {
	ModifiedAfter time.Time
}

// Page is one page of query results with the pagination cursor.
type Page struct {
	Records    []Record `json:"results"`
	NextCursor string   `json:"next_cursor,omitempty"`
	HasMore    bool     `json:"has_more"`
}

// PlainText joins the plain-text content of rich text fragments.
func PlainText(fragments []RichText) string {
	var out string
	for _, f := range fragments {
		out += f.PlainText
	}
	return out
}
