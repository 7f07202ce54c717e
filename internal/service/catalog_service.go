package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"medimate-go/internal/model"
	"medimate-go/pkg/embedding"
	"medimate-go/pkg/log"
	"medimate-go/pkg/vectorstore"
)

// CatalogIndex 是药品目录的相似度索引。每个条目对应且只对应一条记录的 _id。
// 构建完成后只读；nil 的 *CatalogIndex 可以安全检索，结果为空。
type CatalogIndex struct {
	store    vectorstore.Store
	embedder embedding.Client
	size     int
}

// NewCatalogIndex 包装一个已经写好条目的向量存储，例如此前由 catalogctl 建好的持久化索引。
func NewCatalogIndex(ctx context.Context, store vectorstore.Store, embedder embedding.Client) (*CatalogIndex, error) {
	n, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count catalog index: %w", err)
	}
	return &CatalogIndex{store: store, embedder: embedder, size: n}, nil
}

// Len 返回索引中的条目数。
func (c *CatalogIndex) Len() int {
	if c == nil {
		return 0
	}
	return c.size
}

// Search 返回与 query 最相似的至多 k 个条目的规范文本。
func (c *CatalogIndex) Search(ctx context.Context, query string, k int) ([]string, error) {
	if c == nil || c.size == 0 || k <= 0 {
		return nil, nil
	}
	vec, err := c.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed catalog query: %w", err)
	}
	hits, err := c.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search catalog index: %w", err)
	}
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Entry.Text)
	}
	return texts, nil
}

// Close 释放底层存储。
func (c *CatalogIndex) Close() error {
	if c == nil {
		return nil
	}
	return c.store.Close()
}

// CatalogBuildOptions 控制目录索引构建时的批量与并发。
// BuildEmbedder 仅用于构建阶段的目录文本向量化（通常是带磁盘缓存的客户端），
// 为空时使用传入的 embedder。索引检索始终使用传入的 embedder。
type CatalogBuildOptions struct {
	BatchSize     int
	Workers       int
	BuildEmbedder embedding.Client
}

// BuildCatalogIndex 序列化每条记录、分批向量化，并写入 store。
// store 会先被清空；records 为空时返回一个空的非 nil 索引。
// 各批次并发向量化，但按目录顺序写入 store，使相同分数的结果顺序稳定。
func BuildCatalogIndex(ctx context.Context, embedder embedding.Client, store vectorstore.Store, records []model.MedicineRecord, opts CatalogBuildOptions) (*CatalogIndex, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	builder := opts.BuildEmbedder
	if builder == nil {
		builder = embedder
	}
	log.Infof("[CatalogService] 开始构建目录索引, 记录数: %d, 批大小: %d, 并发: %d", len(records), opts.BatchSize, opts.Workers)

	if err := store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset catalog store: %w", err)
	}

	entries := make([]vectorstore.Entry, 0, len(records))
	for _, rec := range records {
		text, err := rec.Serialize()
		if err != nil {
			log.Warnf("[CatalogService] 跳过无法序列化的记录 %s: %v", rec.ID, err)
			continue
		}
		entries = append(entries, vectorstore.Entry{
			// 条目 ID 按位置编号，同一 _id 的多条记录各自成为独立条目
			ID:   fmt.Sprintf("catalog-%d", len(entries)),
			Text: text,
			Metadata: map[string]string{
				vectorstore.MetaRecordID:     rec.ID,
				vectorstore.MetaModelVersion: builder.Model(),
			},
		})
	}

	var batches [][]vectorstore.Entry
	for from := 0; from < len(entries); from += opts.BatchSize {
		to := from + opts.BatchSize
		if to > len(entries) {
			to = len(entries)
		}
		batches = append(batches, entries[from:to])
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, batch := range batches {
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, e := range batch {
				texts[i] = e.Text
			}
			vectors, err := builder.CreateEmbeddings(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed catalog batch: %w", err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedding count mismatch: want %d, got %d", len(batch), len(vectors))
			}
			for i := range batch {
				batch[i].Vector = vectors[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorf("[CatalogService] 构建目录索引失败: %v", err)
		return nil, err
	}

	for _, batch := range batches {
		if err := store.Upsert(ctx, batch); err != nil {
			log.Errorf("[CatalogService] 写入目录索引失败: %v", err)
			return nil, fmt.Errorf("upsert catalog batch: %w", err)
		}
	}

	log.Infof("[CatalogService] 目录索引构建完成, 条目数: %d", len(entries))
	return &CatalogIndex{store: store, embedder: embedder, size: len(entries)}, nil
}
