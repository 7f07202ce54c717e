package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"medimate-go/internal/apperr"
	"medimate-go/internal/config"
	"medimate-go/internal/pipeline"
	"medimate-go/pkg/llm"
	"medimate-go/pkg/log"
)

const extractionInstruction = "Use only the following prescription excerpts to answer the question. " +
	"If the excerpts do not contain the answer, say that you don't know and do not make anything up.\n" +
	"----------------\n"

// ExtractionService 通过检索增强生成，从处方索引中抽取药品名称。
type ExtractionService struct {
	llmClient   llm.Client
	model       string
	query       string
	topK        int
	temperature float64
	timeout     time.Duration
}

// NewExtractionService 创建一个新的 ExtractionService 实例。
func NewExtractionService(llmClient llm.Client, cfg config.ExtractionConfig, model string, timeout time.Duration) *ExtractionService {
	query := cfg.Query
	if query == "" {
		query = config.DefaultExtractionQuery
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	return &ExtractionService{
		llmClient:   llmClient,
		model:       model,
		query:       query,
		topK:        topK,
		temperature: cfg.Temperature,
		timeout:     timeout,
	}
}

// ExtractMedicineNames 检索与固定查询最相关的分块，并让模型仅依据这些分块作答。
// 返回模型的原始回答；索引为空时返回空字符串且不调用模型。
func (s *ExtractionService) ExtractMedicineNames(ctx context.Context, index *pipeline.PrescriptionIndex) (string, error) {
	const op = "ExtractionService.ExtractMedicineNames"
	if index.Len() == 0 {
		log.Info("[ExtractionService] 处方索引为空, 跳过抽取")
		return "", nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	chunks, err := index.Retrieve(ctx, s.query, s.topK)
	if err != nil {
		return "", apperr.New(apperr.ErrExtractionFailed, op, fmt.Errorf("retrieve prescription chunks: %w", err))
	}
	log.Infof("[ExtractionService] 检索到 %d 个相关分块", len(chunks))

	var contextBuilder strings.Builder
	contextBuilder.WriteString(extractionInstruction)
	for i, c := range chunks {
		if i > 0 {
			contextBuilder.WriteString("\n\n")
		}
		contextBuilder.WriteString(c.Text)
	}

	messages := []llm.Message{
		{Role: "system", Content: contextBuilder.String()},
		{Role: "user", Content: s.query},
	}
	answer, err := s.llmClient.ChatMessages(ctx, messages, &llm.GenerationParams{
		Model:       s.model,
		Temperature: llm.Float(s.temperature),
	})
	if err != nil {
		return "", apperr.New(apperr.ErrExtractionFailed, op, err)
	}
	return answer, nil
}
