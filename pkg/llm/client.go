// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"golang.org/x/time/rate"

	"medimate-go/internal/config"
	"medimate-go/pkg/log"
	"medimate-go/pkg/retry"
)

// MessageWriter defines an interface for writing streamed chunks, satisfied by *websocket.Conn.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for an LLM client.
type Client interface {
	// ChatMessages 以 role-based 消息调用聊天接口，返回完整回答。
	ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// StreamChatMessages 以流式方式调用聊天接口，并将分块写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为，Model 为空时使用默认聊天模型。
type GenerationParams struct {
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Float 返回 v 的指针，便于构造 GenerationParams。
func Float(v float64) *float64 { return &v }

type openAIClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
	policy  retry.Policy
	limiter *rate.Limiter
}

// NewClient creates a new OpenAI-compatible chat client.
func NewClient(cfg config.OpenAIConfig, timeout time.Duration, policy retry.Policy) Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	c := &openAIClient{
		client:  openai.NewClient(opts...),
		model:   cfg.ChatModel,
		timeout: timeout,
		policy:  policy,
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

func (c *openAIClient) ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	params := c.buildParams(messages, gen)

	var answer string
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if err := c.wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		resp, err := c.client.Chat.Completions.New(callCtx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response choices returned")
		}
		answer = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		log.Errorf("[LLMClient] 调用聊天接口失败, model: %s, error: %v", params.Model, err)
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	return answer, nil
}

// StreamChatMessages 不做重试：已经写出的分块无法撤回。
func (c *openAIClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) (err error) {
	params := c.buildParams(messages, gen)
	if err := c.wait(ctx); err != nil {
		return err
	}
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	stream := c.client.Chat.Completions.NewStreaming(callCtx, params)
	defer func() {
		if closeErr := stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close stream: %w", closeErr)
		}
	}()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if err := writer.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
			return fmt.Errorf("failed to write stream chunk: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("failed to receive stream response: %w", err)
	}
	return nil
}

func (c *openAIClient) buildParams(messages []Message, gen *GenerationParams) openai.ChatCompletionNewParams {
	model := c.model
	if gen != nil && gen.Model != "" {
		model = gen.Model
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}
	if gen != nil {
		if gen.Temperature != nil {
			params.Temperature = openai.Float(*gen.Temperature)
		}
		if gen.TopP != nil {
			params.TopP = openai.Float(*gen.TopP)
		}
		if gen.MaxTokens != nil {
			params.MaxCompletionTokens = openai.Int(int64(*gen.MaxTokens))
		}
	}
	return params
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (c *openAIClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *openAIClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
