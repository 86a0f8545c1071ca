// Package transform maps source property schemas to typed relational rows.
// It is pure: no I/O, deterministic for identical inputs.
package transform

import (
	"time"

	"github.com/loomhq/loom/internal/source"
	"github.com/loomhq/loom/internal/store"
)

// Mapping binds source property names to target column names for one
// logical database.
type Mapping map[string]string

// Transform flattens a source record into a row for table. Property values
// dispatch on the source type; a mapped property missing from the record
// leaves its column unset. The row always carries source_id, created_at,
// updated_at, and a normalized visibility.
func Transform(rec source.Record, table store.Table, mapping Mapping) store.Row {
	cols := map[string]any{
		"source_id":  rec.ID,
		"created_at": rec.CreatedTime,
		"updated_at": rec.LastEditedTime,
	}

	for propName, column := range mapping {
		prop, ok := rec.Properties[propName]
		if !ok {
			continue
		}
		if v, ok := propertyValue(prop); ok {
			cols[column] = v
		}
	}

	cols["visibility"] = normalizeVisibility(cols["visibility"])

	return store.Row{Table: table, Columns: cols}
}

// propertyValue converts one typed property to a column value. The second
// return is false when the property carries no usable value (e.g. a date
// without a start).
func propertyValue(p source.Property) (any, bool) {
	switch p.Type {
	case "title":
		return source.PlainText(p.Title), true
	case "rich_text":
		return source.PlainText(p.RichText), true
	case "select":
		if p.Select == nil {
			return "", true
		}
		return p.Select.Name, true
	case "multi_select":
		names := make([]string, 0, len(p.MultiSelect))
		for _, opt := range p.MultiSelect {
			names = append(names, opt.Name)
		}
		return names, true
	case "date":
		if p.Date == nil || p.Date.Start == "" {
			return nil, false
		}
		if t, ok := parseDate(p.Date.Start); ok {
			return t, true
		}
		return nil, false
	case "number":
		if p.Number == nil {
			return nil, false
		}
		return *p.Number, true
	case "url":
		return p.URL, true
	case "people":
		if len(p.People) == 0 {
			return "", true
		}
		return p.People[0].Name, true
	default:
		return "", true
	}
}

// parseDate accepts the source's date-only and timestamp formats.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeVisibility coerces the mapped visibility value to one of the two
// known tags, defaulting to internal.
func normalizeVisibility(v any) string {
	if s, ok := v.(string); ok && s == store.VisibilityPublic {
		return store.VisibilityPublic
	}
	return store.VisibilityInternal
}
