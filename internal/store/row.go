package store

import "time"

// Row is a flat column-to-value mapping bound for exactly one table.
// Every row carries source_id (the upsert conflict key), created_at,
// updated_at, and visibility.
type Row struct {
	Table   Table
	Columns map[string]any
}

// SourceID returns the row's unique source identifier.
func (r Row) SourceID() string {
	id, _ := r.Columns["source_id"].(string)
	return id
}

// Visibility returns the row's visibility tag, defaulting to internal.
func (r Row) Visibility() string {
	if v, ok := r.Columns["visibility"].(string); ok && v == VisibilityPublic {
		return VisibilityPublic
	}
	return VisibilityInternal
}

// Title returns the row's display title.
func (r Row) Title() string {
	t, _ := r.Columns["title"].(string)
	return t
}

// UpdatedAt returns the row's modification timestamp, zero when unset.
func (r Row) UpdatedAt() time.Time {
	t, _ := r.Columns["updated_at"].(time.Time)
	return t
}

// stringColumn returns a named column as a string, empty when unset or not
// a string.
func (r Row) stringColumn(name string) string {
	s, _ := r.Columns[name].(string)
	return s
}

// BodyText returns the text written to the object store: content, summary,
// or notes, first non-empty wins. Empty means the object write is skipped.
func (r Row) BodyText() string {
	for _, col := range []string{"content", "summary", "notes"} {
		if s := r.stringColumn(col); s != "" {
			return s
		}
	}
	return ""
}

// EmbeddingText returns the text embedded for the vector index: content,
// summary, notes, then title as a last resort.
func (r Row) EmbeddingText() string {
	if s := r.BodyText(); s != "" {
		return s
	}
	return r.Title()
}
