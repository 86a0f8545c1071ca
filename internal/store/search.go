package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Document is a unified search row shape across the logical tables. Tables
// that lack a column surface it as empty.
type Document struct {
	Table      Table     `json:"table"`
	SourceID   string    `json:"sourceId"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Content    string    `json:"content"`
	Notes      string    `json:"notes"`
	Status     string    `json:"status"`
	Lang       string    `json:"lang"`
	Tags       []string  `json:"tags"`
	Visibility string    `json:"visibility"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Score      float64   `json:"score"`
}

// SearchQuery selects candidate documents for keyword search. Relevance
// scoring happens in the retrieval engine; the store only fetches rows
// matching any keyword under the visibility filter.
type SearchQuery struct {
	Tables     []Table
	Visibility string
	Keywords   []string
	Statuses   []string // optional status restriction (public persona)
	Lang       string   // optional language restriction (public persona)
	Limit      int
}

// searchColumns renders the unified column list for one table, substituting
// empty literals for columns the table does not carry.
func searchColumns(t Table) string {
	col := func(name, absent string) string {
		if t.HasColumn(name) {
			return name
		}
		return absent + " AS " + name
	}
	return strings.Join([]string{
		"'" + string(t) + "' AS tbl",
		"source_id",
		col("title", "''"),
		col("summary", "''"),
		col("content", "''"),
		col("notes", "''"),
		col("status", "''"),
		col("lang", "''"),
		col("tags", "ARRAY[]::text[]"),
		"visibility",
		"updated_at",
	}, ", ")
}

// keywordColumns are the text fields matched against keywords.
var keywordColumns = []string{"title", "summary", "content", "notes"}

// buildSearchSQL renders the UNION ALL candidate query.
func buildSearchSQL(q SearchQuery) (string, []any) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	visArg := arg(q.Visibility)

	var kwArgs []string
	for _, kw := range q.Keywords {
		kwArgs = append(kwArgs, arg("%"+kw+"%"))
	}

	var statusClause string
	if len(q.Statuses) > 0 {
		quoted := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			quoted[i] = arg(s)
		}
		statusClause = " AND status IN (" + strings.Join(quoted, ", ") + ")"
	}

	var langArg string
	if q.Lang != "" {
		langArg = arg(q.Lang)
	}

	var selects []string
	for _, t := range q.Tables {
		var where []string
		where = append(where, "visibility = "+visArg)
		if len(kwArgs) > 0 {
			var matches []string
			for _, col := range keywordColumns {
				if !t.HasColumn(col) {
					continue
				}
				for _, ka := range kwArgs {
					matches = append(matches, col+" ILIKE "+ka)
				}
			}
			where = append(where, "("+strings.Join(matches, " OR ")+")")
		}
		if statusClause != "" && t.HasColumn("status") {
			where[0] += statusClause
		}
		if langArg != "" && t.HasColumn("lang") {
			where = append(where, "lang = "+langArg)
		}

		selects = append(selects, fmt.Sprintf(
			"SELECT %s FROM %s WHERE %s",
			searchColumns(t), t, strings.Join(where, " AND ")))
	}

	sql := strings.Join(selects, " UNION ALL ")
	sql += " ORDER BY updated_at DESC"
	if q.Limit > 0 {
		sql += " LIMIT " + arg(q.Limit)
	}
	return sql, args
}

// Search fetches candidate documents matching q across its tables.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]Document, error) {
	if len(q.Tables) == 0 {
		return nil, nil
	}

	sql, args := buildSearchSQL(q)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, &DatabaseError{Op: "search", Err: err}
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var tbl string
		if err := rows.Scan(&tbl, &d.SourceID, &d.Title, &d.Summary, &d.Content,
			&d.Notes, &d.Status, &d.Lang, &d.Tags, &d.Visibility, &d.UpdatedAt); err != nil {
			return nil, &DatabaseError{Op: "search scan", Err: err}
		}
		d.Table = Table(tbl)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &DatabaseError{Op: "search rows", Err: err}
	}

	s.logger.Debug("keyword search executed",
		"tables", len(q.Tables),
		"keywords", len(q.Keywords),
		"candidates", len(docs))
	return docs, nil
}
