// Package store is the relational sink and keyword-search path over
// PostgreSQL. Rows from the transformer are upserted in batches keyed by
// source_id; the retrieval engine runs ranked keyword queries across the
// logical tables.
package store

// Table identifies one of the four logical content tables.
type Table string

const (
	TableCatalog    Table = "catalog"
	TableCases      Table = "cases"
	TablePublishing Table = "publishing"
	TableFinance    Table = "finance"
)

// Tables lists all logical tables in a stable order.
var Tables = []Table{TableCatalog, TableCases, TablePublishing, TableFinance}

// Visibility values for rows and vector namespaces.
const (
	VisibilityPublic   = "public"
	VisibilityInternal = "internal"
)

// InternalOnly reports whether a table is excluded from public retrieval
// regardless of per-row visibility.
func (t Table) InternalOnly() bool {
	return t == TablePublishing || t == TableFinance
}

// Valid reports whether t is a known table.
func (t Table) Valid() bool {
	switch t {
	case TableCatalog, TableCases, TablePublishing, TableFinance:
		return true
	}
	return false
}

// columnsByTable is the writable column set per table. source_id,
// created_at, updated_at, and visibility are present everywhere; the rest
// is table-specific. Unknown columns on a row are dropped at upsert time.
var columnsByTable = map[Table][]string{
	TableCatalog: {
		"source_id", "title", "summary", "content", "notes",
		"status", "lang", "tags", "topic", "url",
		"visibility", "created_at", "updated_at",
	},
	TableCases: {
		"source_id", "title", "client", "summary", "content", "notes",
		"status", "tags", "visibility", "created_at", "updated_at",
	},
	TablePublishing: {
		"source_id", "title", "channel", "summary", "content", "notes",
		"status", "publish_date", "url", "visibility", "created_at", "updated_at",
	},
	TableFinance: {
		"source_id", "title", "category", "amount", "currency", "notes",
		"status", "entry_date", "visibility", "created_at", "updated_at",
	},
}

// Columns returns the writable columns for a table.
func (t Table) Columns() []string {
	return columnsByTable[t]
}

// HasColumn reports whether the table carries the named column.
func (t Table) HasColumn(name string) bool {
	for _, c := range columnsByTable[t] {
		if c == name {
			return true
		}
	}
	return false
}
