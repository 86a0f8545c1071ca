package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/log"
)

func TestKeyFormat(t *testing.T) {
	now := time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)
	got := Key("abc-123", now)
	want := "content/2024-03-15/abc-123.md"
	if got != want {
		t.Errorf("Key = %q, want %q", got, want)
	}
}

func TestBodyFormat(t *testing.T) {
	got := string(Body("My Title", "Some text."))
	want := "# My Title\n\nSome text."
	if got != want {
		t.Errorf("Body = %q, want %q", got, want)
	}
}

func TestFSPutWritesFile(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFS(root, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	key := Key("rec-1", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	body := Body("Title", "content")
	if err := fs.Put(context.Background(), key, body, ContentTypeMarkdown); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "content", "2024-01-02", "rec-1.md"))
	if err != nil {
		t.Fatalf("reading object: %v", err)
	}
	if string(data) != string(body) {
		t.Errorf("object body = %q", data)
	}
}

func TestFSPutOverwrites(t *testing.T) {
	fs, _ := NewFS(t.TempDir(), log.NewNop())

	ctx := context.Background()
	if err := fs.Put(ctx, "content/a.md", []byte("v1"), ContentTypeMarkdown); err != nil {
		t.Fatal(err)
	}
	if err := fs.Put(ctx, "content/a.md", []byte("v2"), ContentTypeMarkdown); err != nil {
		t.Fatal(err)
	}
}

func TestFSPutRejectsTraversal(t *testing.T) {
	fs, _ := NewFS(t.TempDir(), log.NewNop())

	for _, key := range []string{"", "../escape.md", "/abs/path.md", "a/../../b.md"} {
		if err := fs.Put(context.Background(), key, []byte("x"), ContentTypeMarkdown); err == nil {
			t.Errorf("Put(%q) should be rejected", key)
		}
	}
}

func TestNewFSRequiresRoot(t *testing.T) {
	if _, err := NewFS("", log.NewNop()); err == nil {
		t.Error("expected error for empty root")
	}
}
