package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrFileTooLarge       = errors.New("file exceeds maximum size")
	ErrExtensionForbidden = errors.New("file extension not allowed")
)

// DocumentStorage keeps uploaded documents grouped into batches. A batch is
// the unit that gets indexed; only the newest batch is expected to survive.
type DocumentStorage interface {
	// NewBatch allocates an empty batch and returns its directory.
	NewBatch(ctx context.Context) (batchDir string, err error)
	// Save persists file content into a batch and returns the storage path.
	Save(ctx context.Context, batchDir, filename string, reader io.Reader) (storagePath string, err error)
	// Open returns a reader for the stored file.
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)
	// RemoveBatch deletes a batch and everything in it.
	RemoveBatch(ctx context.Context, batchDir string) error
	// PruneExcept deletes every batch other than keep.
	PruneExcept(ctx context.Context, keep string) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName reduces an uploaded filename to a flat, filesystem-safe form.
func SafeName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}

// AllowedExtension reports whether filename ends in one of allowed
// (compared case-insensitively, without the leading dot).
func AllowedExtension(filename string, allowed []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.TrimPrefix(strings.ToLower(a), ".") == ext {
			return true
		}
	}
	return false
}
