// Package pipeline 定义了处方文档到推荐结果的核心流程。
package pipeline

import (
	"context"
	"time"

	"medimate-go/internal/model"
	"medimate-go/pkg/embedding"
	"medimate-go/pkg/log"
	"medimate-go/pkg/metrics"
)

// Extractor 从处方索引中抽取药品名称文本。
type Extractor interface {
	ExtractMedicineNames(ctx context.Context, index *PrescriptionIndex) (string, error)
}

// Resolver 把抽取出的药品文本解析为目录中的推荐记录。
type Resolver interface {
	Recommend(ctx context.Context, hint string) (model.RecommendationSet, error)
}

// Run 记录一次处方处理的中间结果，只属于一个请求。
type Run struct {
	RequestID       string
	FileName        string
	Chunks          []model.TextChunk
	ExtractedText   string
	Recommendations model.RecommendationSet
}

// Processor 封装了处方处理的所有依赖和逻辑。
type Processor struct {
	ingestor  *Ingestor
	embedder  embedding.Client
	extractor Extractor
	resolver  Resolver
	metrics   *metrics.Metrics
}

// NewProcessor 创建一个新的 Processor 实例。m 可以为 nil。
func NewProcessor(ingestor *Ingestor, embedder embedding.Client, extractor Extractor, resolver Resolver, m *metrics.Metrics) *Processor {
	return &Processor{
		ingestor:  ingestor,
		embedder:  embedder,
		extractor: extractor,
		resolver:  resolver,
		metrics:   m,
	}
}

// Process 依次执行切块、建索引、抽取与推荐。各阶段严格有序，任一阶段失败即返回。
func (p *Processor) Process(ctx context.Context, requestID string, data []byte, fileName string) (*Run, error) {
	run := &Run{RequestID: requestID, FileName: fileName}
	log.Infof("[Processor] 开始处理处方, RequestID: %s, FileName: %s, 大小: %d字节", requestID, fileName, len(data))

	// 1. 提取文本并切块
	log.Info("[Processor] 步骤1: 提取文本并切块")
	started := time.Now()
	chunks, err := p.ingestor.Ingest(ctx, data, fileName)
	p.metrics.ObserveStage("ingest", time.Since(started))
	if err != nil {
		log.Errorf("[Processor] 步骤1: 切块失败, RequestID: %s, Error: %v", requestID, err)
		return nil, err
	}
	run.Chunks = chunks
	log.Infof("[Processor] 步骤1: 切块完成, 共生成 %d 个分块", len(chunks))

	// 2. 建立本次请求专属的处方索引
	log.Info("[Processor] 步骤2: 建立处方索引")
	started = time.Now()
	index, err := BuildPrescriptionIndex(ctx, p.embedder, chunks)
	p.metrics.ObserveStage("prescription_index", time.Since(started))
	if err != nil {
		log.Errorf("[Processor] 步骤2: 建立处方索引失败, RequestID: %s, Error: %v", requestID, err)
		return nil, err
	}
	defer func() {
		if err := index.Close(); err != nil {
			log.Warnf("[Processor] 释放处方索引失败, RequestID: %s, Error: %v", requestID, err)
		}
	}()

	// 3. 抽取药品名称
	log.Info("[Processor] 步骤3: 抽取药品名称")
	started = time.Now()
	extracted, err := p.extractor.ExtractMedicineNames(ctx, index)
	p.metrics.ObserveStage("extract", time.Since(started))
	if err != nil {
		log.Errorf("[Processor] 步骤3: 抽取药品名称失败, RequestID: %s, Error: %v", requestID, err)
		return nil, err
	}
	run.ExtractedText = extracted
	log.Infof("[Processor] 步骤3: 抽取完成, 文本长度: %d", len(extracted))

	// 4. 检索目录并生成推荐
	log.Info("[Processor] 步骤4: 检索目录并生成推荐")
	started = time.Now()
	recs, err := p.resolver.Recommend(ctx, extracted)
	p.metrics.ObserveStage("recommend", time.Since(started))
	if err != nil {
		log.Errorf("[Processor] 步骤4: 生成推荐失败, RequestID: %s, Error: %v", requestID, err)
		return nil, err
	}
	if recs == nil {
		recs = model.RecommendationSet{}
	}
	run.Recommendations = recs

	log.Infof("[Processor] 处方处理完成, RequestID: %s, 推荐数: %d", requestID, len(recs))
	return run, nil
}
