package access

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNoDeclarationsIsFree(t *testing.T) {
	root, fsys := testFS(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a/b/c"), 0o755))

	acc, err := NewResolver(fsys).Resolve(context.Background(), "a/b/c/file.txt")
	require.NoError(t, err)
	assert.False(t, acc.Paid)
}

func TestResolveInheritsFromRoot(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, ".", "paid: true\nbase-price: 42 sat\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir"), 0o755))

	acc, err := NewResolver(fsys).Resolve(context.Background(), "dir/file.txt")
	require.NoError(t, err)
	assert.True(t, acc.Paid)
	assert.Equal(t, Price(42), acc.Price)
}

func TestResolveChildOverridesPaid(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, ".", "paid: true\nbase-price: 42 sat\n")
	writeDeclaration(t, root, "free", "paid: false\n")

	acc, err := NewResolver(fsys).Resolve(context.Background(), "free/file.txt")
	require.NoError(t, err)
	assert.False(t, acc.Paid)
}

func TestResolveChildOverridesFree(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, ".", "paid: false\n")
	writeDeclaration(t, root, "paywalled", "paid: true\nbase-price: 23 sat\n")

	acc, err := NewResolver(fsys).Resolve(context.Background(), "paywalled/file.txt")
	require.NoError(t, err)
	assert.True(t, acc.Paid)
	assert.Equal(t, Price(23), acc.Price)
}

func TestResolveChildOverridesPrice(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, ".", "paid: true\nbase-price: 42 sat\n")
	writeDeclaration(t, root, "pricier", "base-price: 100 sat\n")

	acc, err := NewResolver(fsys).Resolve(context.Background(), "pricier/file.txt")
	require.NoError(t, err)
	assert.True(t, acc.Paid)
	assert.Equal(t, Price(100), acc.Price)
}

func TestResolvePaidWithoutAnyPriceFails(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, ".", "paid: true\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir"), 0o755))

	_, err := NewResolver(fsys).Resolve(context.Background(), "dir/file.txt")
	require.ErrorIs(t, err, ErrMissingPrice)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestResolveFreeWithoutPriceSucceeds(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, ".", "paid: false\n")

	acc, err := NewResolver(fsys).Resolve(context.Background(), "file.txt")
	require.NoError(t, err)
	assert.False(t, acc.Paid)
}

// The behavior from the documentation example: a paid subtree with a free
// pocket inside it.
func TestResolvePaidSubtreeWithFreePocket(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, ".", "paid: false\n")
	writeDeclaration(t, root, "docs", "paid: true\nbase-price: 1000 sat\n")
	writeDeclaration(t, root, "docs/public", "paid: false\n")
	r := NewResolver(fsys)

	acc, err := r.Resolve(context.Background(), "docs/report.pdf")
	require.NoError(t, err)
	assert.True(t, acc.Paid)
	assert.Equal(t, Price(1000), acc.Price)

	acc, err = r.Resolve(context.Background(), "docs/public/notice.pdf")
	require.NoError(t, err)
	assert.False(t, acc.Paid)
}

func TestResolveIgnoresSubdirectoriesAndSiblings(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, "sub", "paid: true\nbase-price: 42 sat\n")
	writeDeclaration(t, root, "sibling", "paid: true\nbase-price: 23 sat\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "other"), 0o755))
	r := NewResolver(fsys)

	// A file directly in the root is not affected by sub/'s declaration.
	acc, err := r.Resolve(context.Background(), "file.txt")
	require.NoError(t, err)
	assert.False(t, acc.Paid)

	// Nor is a file in an unrelated sibling directory.
	acc, err = r.Resolve(context.Background(), "other/file.txt")
	require.NoError(t, err)
	assert.False(t, acc.Paid)
}

func TestResolveReflectsLiveEdits(t *testing.T) {
	root, fsys := testFS(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir"), 0o755))
	r := NewResolver(fsys)

	acc, err := r.Resolve(context.Background(), "dir/file.txt")
	require.NoError(t, err)
	assert.False(t, acc.Paid)

	writeDeclaration(t, root, "dir", "paid: true\nbase-price: 5 sat\n")

	acc, err = r.Resolve(context.Background(), "dir/file.txt")
	require.NoError(t, err)
	assert.True(t, acc.Paid)
	assert.Equal(t, Price(5), acc.Price)
}

func TestResolvePropagatesBrokenDeclarations(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, "dir", "{{{")

	_, err := NewResolver(fsys).Resolve(context.Background(), "dir/file.txt")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestChain(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"file.txt", []string{"."}},
		{"a/file.txt", []string{".", "a"}},
		{"a/b/c/file.txt", []string{".", "a", "a/b", "a/b/c"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, chain(tt.path), "path %q", tt.path)
	}
}
