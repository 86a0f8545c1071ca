package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DB is the subset of pgxpool.Pool the index depends on.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGIndex stores embeddings in the documents table using pgvector, with the
// namespace held as a column. Safe for concurrent use.
type PGIndex struct {
	db     DB
	logger *slog.Logger
}

// NewPGIndex creates a pgvector-backed index over db.
func NewPGIndex(db DB, logger *slog.Logger) *PGIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGIndex{db: db, logger: logger}
}

const upsertSQL = `
INSERT INTO documents (id, namespace, content, metadata, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE SET
    namespace = EXCLUDED.namespace,
    content = EXCLUDED.content,
    metadata = EXCLUDED.metadata,
    embedding = EXCLUDED.embedding,
    updated_at = now()`

// Upsert writes or overwrites one entry in the given namespace.
func (x *PGIndex) Upsert(ctx context.Context, namespace string, e Entry) error {
	if len(e.Vector) != Dimension {
		return fmt.Errorf("embedding dimension %d, want %d", len(e.Vector), Dimension)
	}

	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %q: %w", e.ID, err)
	}

	embedding := pgvector.NewVector(e.Vector)
	if _, err := x.db.Exec(ctx, upsertSQL,
		e.ID, namespace, e.Metadata.Content, metadata, &embedding); err != nil {
		return fmt.Errorf("failed to upsert vector %q: %w", e.ID, err)
	}

	x.logger.Debug("vector upserted", "id", e.ID, "namespace", namespace)
	return nil
}

const querySQL = `
SELECT id, metadata, 1 - (embedding <=> $1) AS similarity
FROM documents
WHERE namespace = $2
ORDER BY embedding <=> $1
LIMIT $3`

// Query returns the topK nearest entries in the namespace by cosine
// similarity.
func (x *PGIndex) Query(ctx context.Context, namespace string, vec []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 6
	}
	embedding := pgvector.NewVector(vec)

	rows, err := x.db.Query(ctx, querySQL, &embedding, namespace, topK)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var raw []byte
		if err := rows.Scan(&m.ID, &raw, &m.Similarity); err != nil {
			return nil, fmt.Errorf("vector scan failed: %w", err)
		}
		if err := json.Unmarshal(raw, &m.Metadata); err != nil {
			x.logger.Warn("failed to parse vector metadata", "id", m.ID, "error", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector rows failed: %w", err)
	}
	return matches, nil
}

// Delete removes one entry from a namespace. Used when a row's visibility
// flips so the stale entry cannot linger in the old namespace.
func (x *PGIndex) Delete(ctx context.Context, namespace, id string) error {
	if _, err := x.db.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND namespace = $2`, id, namespace); err != nil {
		return fmt.Errorf("failed to delete vector %q: %w", id, err)
	}
	return nil
}
