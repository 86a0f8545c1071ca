// Package vector provides the namespaced vector index used for similarity
// context. Entries are created or overwritten on every successful load of
// their owning row; the public and internal namespaces are never mixed.
package vector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loomhq/loom/internal/store"
)

// Dimension is the embedding dimension used across the index. The schema's
// vector column and the embedder's output must both match it.
const Dimension = 768

// ErrBadCredentials marks a misconfigured vector store credential. Unlike
// per-record embed/store failures, this is systemic and must abort a sync.
var ErrBadCredentials = errors.New("vector store credentials rejected")

// Namespace returns the namespace partition for a visibility tag.
func Namespace(visibility string) string {
	if visibility == store.VisibilityPublic {
		return "kb_public"
	}
	return "kb_internal"
}

// EntryID builds the index id for a row: "<table>_<source_id>".
func EntryID(table store.Table, sourceID string) string {
	return fmt.Sprintf("%s_%s", table, sourceID)
}

// Metadata is the structured payload stored alongside each vector.
type Metadata struct {
	Table      string    `json:"table"`
	SourceID   string    `json:"source_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"` // truncated to MaxMetadataContent
	Visibility string    `json:"visibility"`
	Lang       string    `json:"lang,omitempty"`
	Status     string    `json:"status,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	Tags       []string  `json:"tags,omitempty"`
	Topic      string    `json:"topic,omitempty"`
}

// MaxMetadataContent bounds the content snippet carried in metadata.
const MaxMetadataContent = 1000

// TruncateContent clips s to MaxMetadataContent bytes on a rune boundary.
func TruncateContent(s string) string {
	if len(s) <= MaxMetadataContent {
		return s
	}
	runes := []rune(s)
	out := ""
	for _, r := range runes {
		if len(out)+len(string(r)) > MaxMetadataContent {
			break
		}
		out += string(r)
	}
	return out
}

// Entry is one vector index entry.
type Entry struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is one similarity result.
type Match struct {
	ID         string
	Similarity float64
	Metadata   Metadata
}

// Index is the vector store interface consumed by the loader and the
// retrieval engine.
type Index interface {
	Upsert(ctx context.Context, namespace string, e Entry) error
	Query(ctx context.Context, namespace string, vec []float32, topK int) ([]Match, error)
	Delete(ctx context.Context, namespace, id string) error
}
