// Package objectstore is the pluggable blob storage backend:
// logical-path CRUD plus streaming reads/writes. Paths are the sole
// identity; no separate metadata index is required.
package objectstore

import (
	"context"
	"io"
)

// Store is the narrow interface every backend implements. Paths are a
// pure function of image_id (and repo coordinates for IsPrivate):
// callers in pkg/imagestore own path derivation, not this package.
type Store interface {
	Exists(ctx context.Context, path string) (bool, error)
	GetContent(ctx context.Context, path string) ([]byte, error)
	PutContent(ctx context.Context, path string, data []byte) error
	StreamRead(ctx context.Context, path string) (io.ReadCloser, error)
	StreamWrite(ctx context.Context, path string, r io.Reader) error
	GetSize(ctx context.Context, path string) (int64, error)
	Remove(ctx context.Context, path string) error
	IsPrivate(ctx context.Context, namespace, name string) (bool, error)
}

// LocalPathHint is implemented by backends that can serve an
// accelerated download via X-Accel-Redirect. Only the filesystem
// backend supports it.
type LocalPathHint interface {
	LocalPath(path string) (string, bool)
}

// ErrNotFound is returned by GetContent, StreamRead, and GetSize calls
// against a missing path. Exists reports a missing path as false, and
// Remove is idempotent and never returns it.
var ErrNotFound = notFoundSentinel{}

type notFoundSentinel struct{}

func (notFoundSentinel) Error() string { return "object not found" }
