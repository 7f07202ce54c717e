package embedding

import (
	"context"
	"fmt"

	"medimate-go/pkg/log"
)

// Cache 是向量缓存的最小接口，由 pkg/cache.EmbeddingCache 实现。
type Cache interface {
	Get(model, text string) ([]float32, bool, error)
	Put(model, text string, vec []float32) error
}

type cachedClient struct {
	inner    Client
	cache    Cache
	cacheKey string
}

// NewCachedClient 在 inner 之前加一层缓存，仅对未命中的文本调用 inner。
// 缓存按 模型名/维度 区分，修改 embedding_dimensions 后旧向量不会被命中。
func NewCachedClient(inner Client, cache Cache, dimensions int) Client {
	return &cachedClient{
		inner:    inner,
		cache:    cache,
		cacheKey: fmt.Sprintf("%s/%d", inner.Model(), dimensions),
	}
}

func (c *cachedClient) Model() string { return c.inner.Model() }

func (c *cachedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *cachedClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.cacheKey
	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		vec, ok, err := c.cache.Get(model, text)
		if err != nil {
			// 缓存损坏不影响主流程
			log.Warnf("[EmbeddingCache] 读取缓存失败: %v", err)
		}
		if ok {
			vectors[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.CreateEmbeddings(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		vectors[i] = fresh[j]
		if err := c.cache.Put(model, missTexts[j], fresh[j]); err != nil {
			log.Warnf("[EmbeddingCache] 写入缓存失败: %v", err)
		}
	}
	log.Debugf("[EmbeddingCache] 命中 %d, 未命中 %d", len(texts)-len(missTexts), len(missTexts))
	return vectors, nil
}
