package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimate-go/internal/model"
	"medimate-go/pkg/storage"
)

type fakeObjects struct {
	data map[string][]byte
	err  error
}

func (f *fakeObjects) Get(_ context.Context, name string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.data[name]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return b, nil
}

const catalogJSON = `[
	{"_id": "m1", "name": "Paracetamol"},
	{"_id": {"$oid": "64b7f0c2a1b2c3d4e5f60718"}, "name": "Ibuprofen"},
	{"name": "No id"}
]`

func TestFileCatalogSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medicines.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o600))

	records, err := LoadCatalog(context.Background(), NewFileCatalogSource(path))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "m1", records[0].ID)
	assert.Equal(t, "64b7f0c2a1b2c3d4e5f60718", records[1].ID)

	_, err = LoadCatalog(context.Background(), NewFileCatalogSource(filepath.Join(dir, "missing.json")))
	assert.True(t, errors.Is(err, ErrCatalogUnavailable))
}

func TestObjectCatalogSource(t *testing.T) {
	objects := &fakeObjects{data: map[string][]byte{"catalog/medicines.json": []byte(catalogJSON)}}

	tests := []struct {
		name            string
		src             *objectCatalogSource
		wantLen         int
		wantUnavailable bool
	}{
		{name: "present", src: &objectCatalogSource{objects: objects, object: "catalog/medicines.json"}, wantLen: 2},
		{name: "missing object", src: &objectCatalogSource{objects: objects, object: "nope.json"}, wantUnavailable: true},
		{name: "no storage", src: &objectCatalogSource{object: "catalog/medicines.json"}, wantUnavailable: true},
		{name: "storage down", src: &objectCatalogSource{objects: &fakeObjects{err: errors.New("dial tcp")}, object: "x"}, wantUnavailable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := tt.src.Load(context.Background())
			if tt.wantUnavailable {
				assert.True(t, errors.Is(err, ErrCatalogUnavailable), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, records, tt.wantLen)
		})
	}
}

func TestStoreCatalogSource(t *testing.T) {
	repo := newFakeMedicineRepo(medicine("m1", "Paracetamol"))
	records, err := NewStoreCatalogSource(repo).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Paracetamol", records[0].Name())
}

func TestSeedCatalog(t *testing.T) {
	repo := newFakeMedicineRepo(medicine("m1", "Old name"))
	n, err := SeedCatalog(context.Background(), repo, []model.MedicineRecord{
		medicine("m1", "Paracetamol"),
		medicine("m2", "Ibuprofen"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := repo.FindByID(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Paracetamol", rec.Name())
	assert.Len(t, repo.records, 2)
}
