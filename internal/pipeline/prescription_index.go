package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"medimate-go/internal/apperr"
	"medimate-go/internal/model"
	"medimate-go/pkg/embedding"
	"medimate-go/pkg/vectorstore"
)

// 单次 Embedding 请求的最大输入条数。
const embedBatchSize = 128

// PrescriptionIndex 是单个请求内、针对一份文档分块的临时向量索引。
// 它只属于创建它的请求，调用方必须在所有退出路径上 Close。
type PrescriptionIndex struct {
	store    *vectorstore.MemoryStore
	embedder embedding.Client
	chunks   []model.TextChunk
}

// BuildPrescriptionIndex 对分块做向量化并建立索引。分块为空时返回空索引，不调用 Embedding。
func BuildPrescriptionIndex(ctx context.Context, embedder embedding.Client, chunks []model.TextChunk) (*PrescriptionIndex, error) {
	const op = "BuildPrescriptionIndex"
	idx := &PrescriptionIndex{store: vectorstore.NewMemoryStore(), embedder: embedder}
	if len(chunks) == 0 {
		return idx, nil
	}

	for from := 0; from < len(chunks); from += embedBatchSize {
		to := from + embedBatchSize
		if to > len(chunks) {
			to = len(chunks)
		}
		texts := make([]string, 0, to-from)
		for _, c := range chunks[from:to] {
			texts = append(texts, c.Text)
		}
		vectors, err := embedder.CreateEmbeddings(ctx, texts)
		if err != nil {
			return nil, apperr.New(apperr.ErrExtractionFailed, op, fmt.Errorf("embed chunks: %w", err))
		}
		if len(vectors) != len(texts) {
			return nil, apperr.Newf(apperr.ErrExtractionFailed, op, "embedding count mismatch: want %d, got %d", len(texts), len(vectors))
		}

		entries := make([]vectorstore.Entry, 0, len(texts))
		for j, vec := range vectors {
			pos := from + j
			entries = append(entries, vectorstore.Entry{
				ID:     strconv.Itoa(pos),
				Text:   chunks[pos].Text,
				Vector: vec,
			})
		}
		if err := idx.store.Upsert(ctx, entries); err != nil {
			return nil, apperr.New(apperr.ErrExtractionFailed, op, err)
		}
	}
	idx.chunks = append(idx.chunks, chunks...)
	return idx, nil
}

// Len 返回索引中的分块数。
func (ix *PrescriptionIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.chunks)
}

// Retrieve 返回与 query 最相关的至多 k 个分块，索引为空时不调用 Embedding。
func (ix *PrescriptionIndex) Retrieve(ctx context.Context, query string, k int) ([]model.TextChunk, error) {
	if ix.Len() == 0 || k <= 0 {
		return nil, nil
	}
	vec, err := ix.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := ix.store.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	out := make([]model.TextChunk, 0, len(hits))
	for _, h := range hits {
		pos, err := strconv.Atoi(h.Entry.ID)
		if err != nil || pos < 0 || pos >= len(ix.chunks) {
			continue
		}
		out = append(out, ix.chunks[pos])
	}
	return out, nil
}

// Close 释放索引占用的向量。
func (ix *PrescriptionIndex) Close() error {
	if ix == nil {
		return nil
	}
	ix.chunks = nil
	return ix.store.Close()
}
