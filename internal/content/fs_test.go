package content

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) (*FSStorage, string) {
	t.Helper()
	root := t.TempDir()
	storage, err := NewFSStorage(root)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage, root
}

func writeFile(t *testing.T, root, name, data string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(data), 0o644))
}

func TestFSStorageStat(t *testing.T) {
	storage, root := newTestFS(t)
	writeFile(t, root, "docs/report.pdf", "content")

	info, err := storage.Stat(context.Background(), "docs/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", info.Name)
	assert.Equal(t, int64(7), info.Size)
	assert.False(t, info.Dir)
	assert.False(t, info.ModTime.IsZero())

	info, err = storage.Stat(context.Background(), "docs")
	require.NoError(t, err)
	assert.True(t, info.Dir)

	// The empty name addresses the root itself.
	info, err = storage.Stat(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, info.Dir)
}

func TestFSStorageMissingFile(t *testing.T) {
	storage, _ := newTestFS(t)
	ctx := context.Background()

	_, err := storage.Stat(ctx, "nope.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = storage.Open(ctx, "nope.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = storage.ReadFile(ctx, "nope.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = storage.ReadDir(ctx, "nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFSStorageOpenAndRead(t *testing.T) {
	storage, root := newTestFS(t)
	writeFile(t, root, "hello.txt", "hello world")
	ctx := context.Background()

	f, err := storage.Open(ctx, "hello.txt")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	// Open returns a seeker so range requests work.
	_, err = f.Seek(6, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "world", string(rest))

	raw, err := storage.ReadFile(ctx, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(raw))
}

func TestFSStorageReadDir(t *testing.T) {
	storage, root := newTestFS(t)
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "sub/nested.txt", "n")

	entries, err := storage.ReadDir(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Sorted by name, directories flagged.
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, "b.txt", entries[1].Name)
	assert.Equal(t, "sub", entries[2].Name)
	assert.True(t, entries[2].Dir)
	assert.False(t, entries[0].Dir)
}

func TestFSStorageSymlinkEscapeDenied(t *testing.T) {
	outside := t.TempDir()
	writeFile(t, outside, "secret.txt", "secret")

	storage, root := newTestFS(t)
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.txt")))

	_, err := storage.Open(context.Background(), "link.txt")
	assert.Error(t, err)

	_, err = storage.ReadFile(context.Background(), "link.txt")
	assert.Error(t, err)
}

func TestFSStorageRejectsMissingRoot(t *testing.T) {
	_, err := NewFSStorage(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}
