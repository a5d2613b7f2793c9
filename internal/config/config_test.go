package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()

	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "lazyfilter-saved-filters", cfg.Storage.Key)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.Debounce())
	assert.Equal(t, []string{"id", "skuId", "attributes.brand", "attributes.name"}, cfg.Search.Fields)
	assert.Equal(t, 50, cfg.Query.DefaultLimit)
	assert.Equal(t, "none", cfg.Catalog.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  backend: sqlite
  path: /tmp/filters.db
session:
  debounce_ms: 250
search:
  fields: [skuId, attributes.title]
catalog:
  driver: mongo
  uri: mongodb://localhost:27017
  database: shop
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/filters.db", cfg.Storage.Options().Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.Debounce())
	assert.Equal(t, []string{"skuId", "attributes.title"}, cfg.Search.Fields)
	assert.Equal(t, "mongo", cfg.Catalog.Driver)
	assert.Equal(t, "shop", cfg.Catalog.Database)
	assert.Equal(t, "products", cfg.Catalog.Collection)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 50, cfg.Query.DefaultLimit)
}

func TestLoadFrom_EnvOverride(t *testing.T) {
	t.Setenv("LAZYFILTER_STORAGE_BACKEND", "memory")
	t.Setenv("LAZYFILTER_QUERY_DEFAULT_LIMIT", "10")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: redis\n"), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 10, cfg.Query.DefaultLimit)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown backend", "storage:\n  backend: etcd\n"},
		{"unknown driver", "catalog:\n  driver: oracle\n"},
		{"zero limit", "query:\n  default_limit: 0\n"},
		{"negative debounce", "session:\n  debounce_ms: -1\n"},
		{"broken yaml", "storage: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	// Equivalent of t.Chdir (Go 1.24+) for older toolchains.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, GetDefaults().Storage.Key, cfg.Storage.Key)
	assert.Equal(t, GetDefaults().Log, cfg.Log)
}
