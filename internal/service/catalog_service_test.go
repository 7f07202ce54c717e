package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimate-go/internal/model"
	"medimate-go/pkg/vectorstore"
)

func TestBuildCatalogIndex_Empty(t *testing.T) {
	emb := &bowEmbedder{}
	idx, err := BuildCatalogIndex(context.Background(), emb, vectorstore.NewMemoryStore(), nil, CatalogBuildOptions{})
	require.NoError(t, err)
	require.NotNil(t, idx)
	assert.Equal(t, 0, idx.Len())

	got, err := idx.Search(context.Background(), "paracetamol", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, emb.calls.Load())
}

func TestCatalogIndex_NilIsSafe(t *testing.T) {
	var idx *CatalogIndex
	got, err := idx.Search(context.Background(), "paracetamol", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, idx.Len())
	assert.NoError(t, idx.Close())
}

func TestBuildCatalogIndex_Search(t *testing.T) {
	records := []model.MedicineRecord{
		medicine("m1", "Paracetamol 500mg tablet"),
		medicine("m2", "Amoxicillin 250mg capsule"),
		medicine("m3", "Cetirizine 10mg tablet"),
	}
	store := vectorstore.NewMemoryStore()
	idx, err := BuildCatalogIndex(context.Background(), &bowEmbedder{}, store, records, CatalogBuildOptions{BatchSize: 1, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := idx.Search(context.Background(), "Amoxicillin capsule", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	serialized, err := records[1].Serialize()
	require.NoError(t, err)
	assert.Equal(t, serialized, got[0])
}

func TestBuildCatalogIndex_ResetsStore(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), []vectorstore.Entry{{ID: "stale", Vector: bowVector("stale")}}))

	_, err := BuildCatalogIndex(context.Background(), &bowEmbedder{}, store, []model.MedicineRecord{medicine("m1", "Paracetamol")}, CatalogBuildOptions{})
	require.NoError(t, err)
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuildCatalogIndex_EmbeddingFailure(t *testing.T) {
	emb := &bowEmbedder{err: errors.New("quota exceeded")}
	_, err := BuildCatalogIndex(context.Background(), emb, vectorstore.NewMemoryStore(), []model.MedicineRecord{medicine("m1", "x")}, CatalogBuildOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

// flatEmbedder 对所有文本返回同一个向量，首个目录批次故意变慢。
type flatEmbedder struct{}

func (flatEmbedder) Model() string { return "flat" }

func (e flatEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	v, err := e.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (flatEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) > 0 && strings.Contains(texts[0], `"_id":"m1"`) {
		time.Sleep(50 * time.Millisecond)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 1}
	}
	return out, nil
}

func TestBuildCatalogIndex_TiesFollowCatalogOrder(t *testing.T) {
	records := []model.MedicineRecord{
		medicine("m1", "Paracetamol"),
		medicine("m2", "Ibuprofen"),
		medicine("m3", "Cetirizine"),
		medicine("m4", "Loratadine"),
	}
	idx, err := BuildCatalogIndex(context.Background(), flatEmbedder{}, vectorstore.NewMemoryStore(), records, CatalogBuildOptions{BatchSize: 1, Workers: 4})
	require.NoError(t, err)

	got, err := idx.Search(context.Background(), "anything", len(records))
	require.NoError(t, err)
	want := make([]string, len(records))
	for i, rec := range records {
		want[i], err = rec.Serialize()
		require.NoError(t, err)
	}
	assert.Equal(t, want, got)
}

func TestBuildCatalogIndex_BuildEmbedderOnlyForCatalog(t *testing.T) {
	query := &bowEmbedder{}
	build := &bowEmbedder{}
	idx, err := BuildCatalogIndex(context.Background(), query, vectorstore.NewMemoryStore(),
		[]model.MedicineRecord{medicine("m1", "Paracetamol")}, CatalogBuildOptions{BuildEmbedder: build})
	require.NoError(t, err)
	assert.Zero(t, query.calls.Load())
	assert.Equal(t, int32(1), build.calls.Load())

	_, err = idx.Search(context.Background(), "Paracetamol", 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), query.calls.Load())
	assert.Equal(t, int32(1), build.calls.Load())
}
