package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/loomhq/loom/internal/resilience"
)

// DefaultBatchSize is the number of rows per upsert statement.
const DefaultBatchSize = 50

// upsertRetry wraps each batch statement.
var upsertRetry = resilience.RetryConfig{MaxAttempts: 3}

// DB is the subset of pgxpool.Pool the store depends on. Defined by the
// consumer so tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// DatabaseError wraps a relational-store failure with the operation that
// produced it.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Store executes relational reads and writes. Safe for concurrent use.
type Store struct {
	db        DB
	batchSize int
	retry     resilience.RetryConfig
	logger    *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithBatchSize overrides the upsert batch size.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New creates a Store over db.
func New(db DB, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:        db,
		batchSize: DefaultBatchSize,
		retry:     upsertRetry,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping verifies connectivity. Used by pre-flight validation and health.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return &DatabaseError{Op: "ping", Err: err}
	}
	return nil
}

// UpsertResult tallies one UpsertRows call.
type UpsertResult struct {
	Upserted int
	Failed   int
	Errors   []error
}

// UpsertRows writes rows to their table in batches. A failed batch (after
// retries) is tallied and skipped; batches already committed remain. Rows
// bound for an unknown table or missing source_id fail individually.
func (s *Store) UpsertRows(ctx context.Context, rows []Row) UpsertResult {
	var result UpsertResult

	byTable := make(map[Table][]Row)
	for _, r := range rows {
		if !r.Table.Valid() || r.SourceID() == "" {
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Errorf("row rejected: table=%q source_id=%q", r.Table, r.SourceID()))
			continue
		}
		byTable[r.Table] = append(byTable[r.Table], r)
	}

	for _, table := range Tables {
		batch := byTable[table]
		for start := 0; start < len(batch); start += s.batchSize {
			chunk := batch[start:min(start+s.batchSize, len(batch))]
			if err := s.upsertChunk(ctx, table, chunk); err != nil {
				result.Failed += len(chunk)
				result.Errors = append(result.Errors, err)
				s.logger.Warn("upsert batch failed",
					"table", table,
					"rows", len(chunk),
					"error", err)
				continue
			}
			result.Upserted += len(chunk)
		}
	}
	return result
}

// upsertChunk executes one multi-row upsert statement with retry.
func (s *Store) upsertChunk(ctx context.Context, table Table, chunk []Row) error {
	sql, args := buildUpsertSQL(table, chunk)
	err := resilience.Retry(ctx, s.retry, func(ctx context.Context) error {
		_, execErr := s.db.Exec(ctx, sql, args...)
		return execErr
	})
	if err != nil {
		return &DatabaseError{Op: fmt.Sprintf("upsert %s", table), Err: err}
	}
	return nil
}

// buildUpsertSQL renders a batched INSERT ... ON CONFLICT (source_id) DO
// UPDATE statement. The column list is the table's writable columns in
// schema order; rows missing a column insert NULL. source_id is never
// updated on conflict.
func buildUpsertSQL(table Table, rows []Row) (string, []any) {
	cols := table.Columns()

	var sb strings.Builder
	args := make([]any, 0, len(rows)*len(cols))

	sb.WriteString("INSERT INTO ")
	sb.WriteString(string(table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(") VALUES ")

	n := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, col := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", n)
			n++
			args = append(args, row.Columns[col])
		}
		sb.WriteString(")")
	}

	sb.WriteString(" ON CONFLICT (source_id) DO UPDATE SET ")
	first := true
	for _, col := range cols {
		if col == "source_id" {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(col)
		sb.WriteString(" = EXCLUDED.")
		sb.WriteString(col)
	}

	return sb.String(), args
}
