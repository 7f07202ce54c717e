// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/time/rate"

	"medimate-go/internal/config"
	"medimate-go/pkg/log"
	"medimate-go/pkg/retry"
)

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	// CreateEmbeddings 批量向量化，返回顺序与输入一致。
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type openAIClient struct {
	client     openai.Client
	model      string
	dimensions int
	timeout    time.Duration
	policy     retry.Policy
	limiter    *rate.Limiter
}

// NewClient creates an OpenAI-compatible embedding client from config.
func NewClient(cfg config.OpenAIConfig, timeout time.Duration, policy retry.Policy) Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// 重试由 retry 包统一控制
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	c := &openAIClient{
		client:     openai.NewClient(opts...),
		model:      cfg.EmbeddingModel,
		dimensions: cfg.EmbeddingDimensions,
		timeout:    timeout,
		policy:     policy,
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return c
}

func (c *openAIClient) Model() string { return c.model }

// CreateEmbedding calls the embedding API for a single text.
func (c *openAIClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// CreateEmbeddings calls the embedding API for a batch of texts.
func (c *openAIClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	log.Debugf("[EmbeddingClient] 开始调用 Embedding API, model: %s, batch: %d", c.model, len(texts))

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.model),
	}
	if c.dimensions > 0 {
		params.Dimensions = openai.Int(int64(c.dimensions))
	}

	var resp *openai.CreateEmbeddingResponse
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		callCtx, cancel := withTimeout(ctx, c.timeout)
		defer cancel()
		r, err := c.client.Embeddings.New(callCtx, params)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) || len(d.Embedding) == 0 {
			return nil, fmt.Errorf("received invalid embedding at index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	log.Debugf("[EmbeddingClient] 成功获取向量, 数量: %d, 维度: %d", len(vectors), len(vectors[0]))
	return vectors, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
