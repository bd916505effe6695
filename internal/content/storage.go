// Package content abstracts the tree of served files so the same gating
// logic works against a local directory or an S3-compatible bucket.
package content

import (
	"context"
	"io"
	"time"
)

// FileInfo describes a single entry in the served tree.
type FileInfo struct {
	Name    string // base name, no path separators
	Size    int64
	Dir     bool
	ModTime time.Time
}

// Storage is the read-only view of the served tree. Paths are
// slash-separated and relative to the root; "." names the root itself.
// Missing entries are reported with an error wrapping fs.ErrNotExist.
type Storage interface {
	Stat(ctx context.Context, name string) (FileInfo, error)
	Open(ctx context.Context, name string) (io.ReadSeekCloser, error)
	ReadFile(ctx context.Context, name string) ([]byte, error)
	ReadDir(ctx context.Context, name string) ([]FileInfo, error)
}
