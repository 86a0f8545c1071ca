// Package objectstore persists canonical markdown renditions of synced
// rows. The loader writes one object per row that carries body text.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ContentTypeMarkdown is the content type for canonical text objects.
const ContentTypeMarkdown = "text/markdown"

// ObjectStore is the write interface consumed by the loader.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Key returns the object key for a source record:
// content/<ISO-date>/<source_id>.md
func Key(sourceID string, now time.Time) string {
	return fmt.Sprintf("content/%s/%s.md", now.UTC().Format("2006-01-02"), sourceID)
}

// Body renders the canonical markdown body: "# <title>\n\n<text>".
func Body(title, text string) []byte {
	return []byte("# " + title + "\n\n" + text)
}

// FS is a filesystem-backed object store rooted at a base directory.
type FS struct {
	root   string
	logger *slog.Logger
}

// NewFS creates a filesystem object store under root.
func NewFS(root string, logger *slog.Logger) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("object store root is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}
	return &FS{root: root, logger: logger}, nil
}

// Put writes body under key, creating intermediate directories. Keys must
// stay inside the root; traversal segments are rejected.
func (f *FS) Put(_ context.Context, key string, body []byte, contentType string) error {
	if key == "" || strings.Contains(key, "..") || filepath.IsAbs(key) {
		return fmt.Errorf("invalid object key %q", key)
	}

	path := filepath.Join(f.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o640); err != nil {
		return fmt.Errorf("failed to write object %q: %w", key, err)
	}

	f.logger.Debug("object written",
		"key", key,
		"bytes", len(body),
		"content_type", contentType)
	return nil
}
