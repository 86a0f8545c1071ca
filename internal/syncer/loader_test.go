package syncer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/log"
	"github.com/loomhq/loom/internal/store"
	"github.com/loomhq/loom/internal/vector"
)

type fakeRelational struct {
	rows    []store.Row
	pingErr error
}

func (f *fakeRelational) UpsertRows(ctx context.Context, rows []store.Row) store.UpsertResult {
	f.rows = append(f.rows, rows...)
	return store.UpsertResult{Upserted: len(rows)}
}

func (f *fakeRelational) Ping(ctx context.Context) error { return f.pingErr }

type fakeObjects struct {
	puts map[string][]byte
	err  error
}

func (f *fakeObjects) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[key] = body
	return nil
}

type indexedEntry struct {
	namespace string
	entry     vector.Entry
}

type fakeIndex struct {
	upserts   []indexedEntry
	deletes   []string
	upsertErr error
}

func (f *fakeIndex) Upsert(ctx context.Context, namespace string, e vector.Entry) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, indexedEntry{namespace, e})
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, namespace string, vec []float32, topK int) ([]vector.Match, error) {
	return nil, nil
}

func (f *fakeIndex) Delete(ctx context.Context, namespace, id string) error {
	f.deletes = append(f.deletes, namespace+"/"+id)
	return nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, vector.Dimension), nil
}

func catalogRow(id, title, content, visibility string) store.Row {
	return store.Row{
		Table: store.TableCatalog,
		Columns: map[string]any{
			"source_id":  id,
			"title":      title,
			"content":    content,
			"visibility": visibility,
			"updated_at": time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func newTestLoader(rel *fakeRelational, obj *fakeObjects, idx *fakeIndex, emb *fakeEmbedder) *Loader {
	l := NewLoader(rel, obj, idx, emb, log.NewNop())
	l.now = func() time.Time { return time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC) }
	return l
}

func TestLoaderAllSinks(t *testing.T) {
	rel := &fakeRelational{}
	obj := &fakeObjects{}
	idx := &fakeIndex{}
	emb := &fakeEmbedder{}
	l := newTestLoader(rel, obj, idx, emb)

	rows := []store.Row{catalogRow("rec-1", "AI Ethics", "a long enough body text", store.VisibilityPublic)}
	res, err := l.Load(context.Background(), rows)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if res.Upserted != 1 || res.Objects != 1 || res.Embedded != 1 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}

	wantKey := "content/2024-06-02/rec-1.md"
	body, ok := obj.puts[wantKey]
	if !ok {
		t.Fatalf("object not written under %q, got %v", wantKey, obj.puts)
	}
	if string(body) != "# AI Ethics\n\na long enough body text" {
		t.Errorf("body = %q", body)
	}

	if len(idx.upserts) != 1 {
		t.Fatalf("upserts = %d", len(idx.upserts))
	}
	up := idx.upserts[0]
	if up.namespace != "kb_public" {
		t.Errorf("namespace = %q", up.namespace)
	}
	if up.entry.ID != "catalog_rec-1" {
		t.Errorf("entry id = %q", up.entry.ID)
	}
	if up.entry.Metadata.Title != "AI Ethics" || up.entry.Metadata.Visibility != store.VisibilityPublic {
		t.Errorf("metadata = %+v", up.entry.Metadata)
	}

	// The other namespace is cleaned up so visibility flips converge.
	if len(idx.deletes) != 1 || idx.deletes[0] != "kb_internal/catalog_rec-1" {
		t.Errorf("deletes = %v", idx.deletes)
	}
}

func TestLoaderInternalNamespace(t *testing.T) {
	idx := &fakeIndex{}
	l := newTestLoader(&fakeRelational{}, &fakeObjects{}, idx, &fakeEmbedder{})

	l.Load(context.Background(), []store.Row{
		catalogRow("rec-2", "Quarterly Plan", "internal planning document", store.VisibilityInternal),
	})

	if len(idx.upserts) != 1 || idx.upserts[0].namespace != "kb_internal" {
		t.Fatalf("upserts = %+v", idx.upserts)
	}
}

func TestLoaderSkipsShortText(t *testing.T) {
	idx := &fakeIndex{}
	emb := &fakeEmbedder{}
	l := newTestLoader(&fakeRelational{}, &fakeObjects{}, idx, emb)

	res, err := l.Load(context.Background(), []store.Row{
		catalogRow("rec-3", "Stub", "", store.VisibilityPublic),
	})
	if err != nil {
		t.Fatal(err)
	}

	if emb.calls != 0 {
		t.Errorf("embedder called %d times for short text", emb.calls)
	}
	if res.Embedded != 0 || res.Upserted != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestLoaderBadCredentialsAborts(t *testing.T) {
	idx := &fakeIndex{upsertErr: vector.ErrBadCredentials}
	emb := &fakeEmbedder{}
	l := newTestLoader(&fakeRelational{}, &fakeObjects{}, idx, emb)

	rows := []store.Row{
		catalogRow("rec-4", "First", "first body text here", store.VisibilityPublic),
		catalogRow("rec-5", "Second", "second body text here", store.VisibilityPublic),
	}
	_, err := l.Load(context.Background(), rows)
	if !errors.Is(err, vector.ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
	if emb.calls != 1 {
		t.Errorf("embedder called %d times after credential failure", emb.calls)
	}
}

func TestLoaderObjectFailureIsolated(t *testing.T) {
	obj := &fakeObjects{err: errors.New("disk full")}
	idx := &fakeIndex{}
	l := newTestLoader(&fakeRelational{}, obj, idx, &fakeEmbedder{})

	res, err := l.Load(context.Background(), []store.Row{
		catalogRow("rec-6", "Doc", "body text long enough", store.VisibilityPublic),
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if res.Failed != 1 {
		t.Errorf("failed = %d", res.Failed)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0].Error(), "disk full") {
		t.Errorf("errors = %v", res.Errors)
	}
	// Vector indexing still runs for the row.
	if len(idx.upserts) != 1 {
		t.Errorf("upserts = %d", len(idx.upserts))
	}
}
