package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loomhq/loom/internal/log"
	"github.com/loomhq/loom/internal/objectstore"
	"github.com/loomhq/loom/internal/provider"
	"github.com/loomhq/loom/internal/store"
	"github.com/loomhq/loom/internal/vector"
)

// minEmbedChars is the shortest text worth embedding. Rows below it
// are written relationally but skipped by the vector sink.
const minEmbedChars = 10

// Relational is the database surface the loader writes through.
// *store.Store satisfies it.
type Relational interface {
	UpsertRows(ctx context.Context, rows []store.Row) store.UpsertResult
	Ping(ctx context.Context) error
}

// LoadResult tallies one Load call across all three sinks.
type LoadResult struct {
	Upserted int
	Objects  int
	Embedded int
	Failed   int
	Errors   []error
}

// Loader fans transformed rows out to the relational store, the object
// store, and the vector index.
type Loader struct {
	relational Relational
	objects    objectstore.ObjectStore
	index      vector.Index
	embedder   provider.Embedder
	logger     log.Logger

	now func() time.Time
}

func NewLoader(relational Relational, objects objectstore.ObjectStore, index vector.Index, embedder provider.Embedder, logger log.Logger) *Loader {
	return &Loader{
		relational: relational,
		objects:    objects,
		index:      index,
		embedder:   embedder,
		logger:     logger,
		now:        time.Now,
	}
}

// Load writes rows to all sinks. Relational failures are isolated per
// batch inside the store; object and vector failures are isolated per
// row. Bad vector credentials abort the whole load since every further
// row would fail the same way.
func (l *Loader) Load(ctx context.Context, rows []store.Row) (LoadResult, error) {
	result := LoadResult{}

	up := l.relational.UpsertRows(ctx, rows)
	result.Upserted = up.Upserted
	result.Failed = up.Failed
	result.Errors = append(result.Errors, up.Errors...)

	for _, row := range rows {
		if !row.Table.Valid() || row.SourceID() == "" {
			continue
		}

		if err := l.putObject(ctx, row); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err)
			l.logger.Warn("object write failed", "source_id", row.SourceID(), "error", err)
		} else if row.BodyText() != "" {
			result.Objects++
		}

		err := l.indexRow(ctx, row)
		switch {
		case errors.Is(err, vector.ErrBadCredentials):
			result.Errors = append(result.Errors, err)
			return result, err
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, err)
			l.logger.Warn("vector index failed", "source_id", row.SourceID(), "error", err)
		case len(row.EmbeddingText()) >= minEmbedChars:
			result.Embedded++
		}
	}

	return result, nil
}

func (l *Loader) putObject(ctx context.Context, row store.Row) error {
	body := row.BodyText()
	if body == "" {
		return nil
	}
	key := objectstore.Key(row.SourceID(), l.now())
	if err := l.objects.Put(ctx, key, objectstore.Body(row.Title(), body), objectstore.ContentTypeMarkdown); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// indexRow embeds the row and upserts it into the namespace matching
// its visibility. The entry is removed from the other namespace so a
// visibility flip does not leave a stale copy behind.
func (l *Loader) indexRow(ctx context.Context, row store.Row) error {
	text := row.EmbeddingText()
	if len(text) < minEmbedChars {
		return nil
	}

	vec, err := l.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed %s: %w", row.SourceID(), err)
	}

	entry := vector.Entry{
		ID:       vector.EntryID(row.Table, row.SourceID()),
		Vector:   vec,
		Metadata: rowMetadata(row),
	}

	ns := vector.Namespace(row.Visibility())
	if err := l.index.Upsert(ctx, ns, entry); err != nil {
		return fmt.Errorf("vector upsert %s: %w", entry.ID, err)
	}

	if err := l.index.Delete(ctx, otherNamespace(ns), entry.ID); err != nil {
		l.logger.Warn("namespace cleanup failed", "id", entry.ID, "error", err)
	}
	return nil
}

func otherNamespace(ns string) string {
	if ns == vector.Namespace(store.VisibilityPublic) {
		return vector.Namespace(store.VisibilityInternal)
	}
	return vector.Namespace(store.VisibilityPublic)
}

func rowMetadata(row store.Row) vector.Metadata {
	tags, _ := row.Columns["tags"].([]string)
	lang, _ := row.Columns["lang"].(string)
	status, _ := row.Columns["status"].(string)
	topic, _ := row.Columns["topic"].(string)

	return vector.Metadata{
		Table:      string(row.Table),
		SourceID:   row.SourceID(),
		Title:      row.Title(),
		Content:    vector.TruncateContent(row.BodyText()),
		Visibility: row.Visibility(),
		Lang:       lang,
		Status:     status,
		UpdatedAt:  row.UpdatedAt(),
		Tags:       tags,
		Topic:      topic,
	}
}
