package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore 是基于暴力余弦相似度的进程内向量存储。
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	entries   []Entry
	norms     []float64
	position  map[string]int
}

// NewMemoryStore 创建一个空的进程内向量存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{position: make(map[string]int)}
}

func (s *MemoryStore) Upsert(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("entry %q has an empty vector", e.ID)
		}
		dim := s.dimension
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("entry %q: %w: want %d, got %d", e.ID, ErrDimensionMismatch, dim, len(e.Vector))
		}
	}

	for _, e := range entries {
		if s.dimension == 0 {
			s.dimension = len(e.Vector)
		}
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		if i, ok := s.position[e.ID]; ok {
			s.entries[i] = e
			s.norms[i] = norm(vec)
			continue
		}
		s.position[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
		s.norms = append(s.norms, norm(vec))
	}
	return nil
}

// Search 对相似度相同的条目保持写入顺序，结果是确定的。
func (s *MemoryStore) Search(_ context.Context, vector []float32, topK int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 || len(s.entries) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, s.dimension, len(vector))
	}

	qnorm := norm(vector)
	hits := make([]Hit, len(s.entries))
	for i, e := range s.entries {
		hits[i] = Hit{Entry: e, Score: cosine(e.Vector, vector, s.norms[i], qnorm)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.entries = nil
	s.norms = nil
	s.position = make(map[string]int)
	return nil
}

// Close 释放全部条目，之后的 Search 返回空结果。
func (s *MemoryStore) Close() error {
	return s.Reset(context.Background())
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
