package access

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satgate/internal/content"
)

func testFS(t *testing.T) (string, FS) {
	t.Helper()
	dir := t.TempDir()
	storage, err := content.NewFSStorage(dir)
	require.NoError(t, err)
	return dir, storage
}

func writeDeclaration(t *testing.T, root, dir, yaml string) {
	t.Helper()
	full := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(full, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(full, DeclarationFile), []byte(yaml), 0o644))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, fsys := testFS(t)

	cfg, err := LoadConfig(context.Background(), fsys, ".")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfigParsesFields(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, ".", "paid: true\nbase-price: 42 sat\n")

	cfg, err := LoadConfig(context.Background(), fsys, ".")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.NotNil(t, cfg.Paid)
	assert.True(t, *cfg.Paid)
	require.NotNil(t, cfg.BasePrice)
	assert.Equal(t, Price(42), *cfg.BasePrice)
}

func TestLoadConfigEmptyFile(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, ".", "")

	cfg, err := LoadConfig(context.Background(), fsys, ".")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Nil(t, cfg.Paid)
	assert.Nil(t, cfg.BasePrice)
}

func TestLoadConfigPaidWithoutLocalPriceIsValid(t *testing.T) {
	root, fsys := testFS(t)
	writeDeclaration(t, root, ".", "paid: true\n")

	cfg, err := LoadConfig(context.Background(), fsys, ".")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, *cfg.Paid)
	assert.Nil(t, cfg.BasePrice)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed yaml", "{{{"},
		{"unknown field", "unknown-field: foo\n"},
		{"price without unit", "base-price: 42\n"},
		{"price wrong unit", "base-price: 42 msat\n"},
		{"price not a number", "base-price: many sat\n"},
		{"negative price", "base-price: -1 sat\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, fsys := testFS(t)
			writeDeclaration(t, root, ".", tt.yaml)

			_, err := LoadConfig(context.Background(), fsys, ".")
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Path, DeclarationFile)
		})
	}
}

func TestPriceString(t *testing.T) {
	assert.Equal(t, "1000 sat", Price(1000).String())
}
