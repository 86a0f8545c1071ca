package vector

import (
	"strings"
	"testing"

	"github.com/loomhq/loom/internal/store"
)

func TestNamespace(t *testing.T) {
	if got := Namespace(store.VisibilityPublic); got != "kb_public" {
		t.Errorf("public namespace = %q", got)
	}
	if got := Namespace(store.VisibilityInternal); got != "kb_internal" {
		t.Errorf("internal namespace = %q", got)
	}
	// Anything that is not explicitly public stays internal.
	if got := Namespace("bogus"); got != "kb_internal" {
		t.Errorf("unknown visibility namespace = %q", got)
	}
}

func TestEntryID(t *testing.T) {
	if got := EntryID(store.TableCatalog, "abc"); got != "catalog_abc" {
		t.Errorf("EntryID = %q", got)
	}
}

func TestTruncateContent(t *testing.T) {
	short := "hello"
	if got := TruncateContent(short); got != short {
		t.Errorf("short content must pass through, got %q", got)
	}

	long := strings.Repeat("x", MaxMetadataContent+500)
	got := TruncateContent(long)
	if len(got) != MaxMetadataContent {
		t.Errorf("truncated length = %d, want %d", len(got), MaxMetadataContent)
	}
}

func TestTruncateContentRuneBoundary(t *testing.T) {
	long := strings.Repeat("界", MaxMetadataContent) // 3 bytes per rune
	got := TruncateContent(long)
	if len(got) > MaxMetadataContent {
		t.Errorf("truncated length = %d, want <= %d", len(got), MaxMetadataContent)
	}
	// Must not split a rune.
	for _, r := range got {
		if r != '界' {
			t.Fatalf("unexpected rune %q in truncated output", r)
		}
	}
}
