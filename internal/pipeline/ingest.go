package pipeline

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"medimate-go/internal/apperr"
	"medimate-go/internal/config"
	"medimate-go/internal/model"
	"medimate-go/pkg/log"
)

// PageExtractor 从文档中按页提取文本，*tika.Client 满足该接口。
type PageExtractor interface {
	ExtractPages(ctx context.Context, r io.Reader, fileName string) ([]model.DocumentPage, error)
}

// Ingestor 负责把上传的文档转换成有界、相互重叠的文本分块。
type Ingestor struct {
	extractor PageExtractor
	paragraph *Splitter
	fine      *Splitter
	timeout   time.Duration
}

// NewIngestor 创建一个 Ingestor。timeout 为文本提取调用的上限，0 表示不限制。
func NewIngestor(extractor PageExtractor, cfg config.ChunkingConfig, timeout time.Duration) *Ingestor {
	return &Ingestor{
		extractor: extractor,
		paragraph: NewSplitter(
			WithChunkSize(cfg.ParagraphSize),
			WithOverlap(cfg.ParagraphOverlap),
			WithSeparators("\n"),
		),
		fine: NewSplitter(
			WithChunkSize(cfg.FineSize),
			WithOverlap(cfg.FineOverlap),
			WithSeparators("\n\n", "\n", " "),
		),
		timeout: timeout,
	}
}

// IsSupportedDocument 判断文件名是否为受支持的文档类型（.pdf，不区分大小写）。
func IsSupportedDocument(fileName string) bool {
	return strings.EqualFold(filepath.Ext(fileName), ".pdf")
}

// Ingest 提取文档的分页文本并切块。空文档返回空切片而不是错误。
func (i *Ingestor) Ingest(ctx context.Context, data []byte, fileName string) ([]model.TextChunk, error) {
	const op = "Ingestor.Ingest"
	if !IsSupportedDocument(fileName) {
		return nil, apperr.Newf(apperr.ErrUnsupportedFormat, op, "Invalid file format")
	}
	if len(data) == 0 {
		return nil, apperr.Newf(apperr.ErrDocumentParse, op, "file %s is empty", fileName)
	}

	extractCtx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	pages, err := i.extractor.ExtractPages(extractCtx, bytes.NewReader(data), fileName)
	if err != nil {
		log.Errorf("[Ingestor] 提取文档文本失败, FileName: %s, Error: %v", fileName, err)
		return nil, apperr.New(apperr.ErrDocumentParse, op, err)
	}
	log.Infof("[Ingestor] 文本提取成功, FileName: %s, 页数: %d", fileName, len(pages))

	return i.ChunkPages(pages), nil
}

// ChunkPages 先按段落窗口切分每一页，再把每个段落窗口细切。
// 分块的偏移是相对于所在页文本的 rune 偏移；空白页不产生分块。
func (i *Ingestor) ChunkPages(pages []model.DocumentPage) []model.TextChunk {
	var chunks []model.TextChunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		runes := []rune(page.Text)
		for _, para := range i.paragraph.SplitRunes(runes) {
			for _, span := range i.fine.SplitRunes(runes[para.Start:para.End]) {
				start, end := para.Start+span.Start, para.Start+span.End
				chunks = append(chunks, model.TextChunk{
					Page:  page.Number,
					Start: start,
					End:   end,
					Text:  string(runes[start:end]),
				})
			}
		}
	}
	return chunks
}
