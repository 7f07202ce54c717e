package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimate-go/internal/config"
	"medimate-go/pkg/vectorstore"
)

func TestOpenIndexStore(t *testing.T) {
	cfg := &config.Config{}

	store, err := OpenIndexStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &vectorstore.MemoryStore{}, store)

	cfg.Catalog.IndexBackend = "faiss"
	_, err = OpenIndexStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpenMedicineRepository_UnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Catalog.StoreDriver = "sqlite"
	_, _, err := OpenMedicineRepository(context.Background(), cfg)
	assert.Error(t, err)
}

func TestCatalogSource(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{source: "", want: "file:medicines.json"},
		{source: "file", want: "file:medicines.json"},
		{source: "minio", want: "minio:catalog/medicines.json"},
		{source: "store", want: "store"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Catalog.Source = tt.source
			cfg.Catalog.File = "medicines.json"
			cfg.Catalog.Object = "catalog/medicines.json"
			assert.Equal(t, tt.want, CatalogSource(cfg, nil, nil).Name())
		})
	}
}

func TestNewEmbedders_WithCache(t *testing.T) {
	cfg := &config.Config{}
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	cfg.Catalog.CacheDir = filepath.Join(t.TempDir(), "cache")

	emb, cleanup, err := NewEmbedders(cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, "text-embedding-3-small", emb.Query.Model())
	assert.Equal(t, "text-embedding-3-small", emb.Build.Model())
	assert.NotSame(t, emb.Query, emb.Build, "检索路径不能经过磁盘缓存")

	opts := BuildOptions(cfg, emb.Build)
	assert.Same(t, emb.Build, opts.BuildEmbedder)
}

func TestNewEmbedders_NoCache(t *testing.T) {
	cfg := &config.Config{}
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"

	emb, cleanup, err := NewEmbedders(cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.Same(t, emb.Query, emb.Build)
}

func TestOpenObjectStore_Disabled(t *testing.T) {
	assert.Nil(t, OpenObjectStore(context.Background(), &config.Config{}))
}
