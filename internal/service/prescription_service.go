package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medimate-go/internal/model"
	"medimate-go/internal/pipeline"
	"medimate-go/pkg/events"
	"medimate-go/pkg/kafka"
	"medimate-go/pkg/log"
)

// PrescriptionProcessor 执行处方处理流水线，*pipeline.Processor 满足该接口。
type PrescriptionProcessor interface {
	Process(ctx context.Context, requestID string, data []byte, fileName string) (*pipeline.Run, error)
}

// ObjectPutter 写入对象存储，*storage.ObjectStore 满足该接口。
type ObjectPutter interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) error
}

// PrescriptionResult 是一次处方分析返回给客户端的结果。
type PrescriptionResult struct {
	RequestID       string
	ExtractedText   string
	Recommendations model.RecommendationSet
	ArchiveObject   string
}

// PrescriptionService 负责处方分析，以及分析成功后的归档与事件发布。
type PrescriptionService interface {
	Analyze(ctx context.Context, fileName string, data []byte) (*PrescriptionResult, error)
}

type prescriptionService struct {
	processor PrescriptionProcessor
	archive   ObjectPutter
	publisher kafka.Publisher
	now       func() time.Time
}

// NewPrescriptionService 创建一个新的 PrescriptionService 实例。archive 为 nil 时不归档。
func NewPrescriptionService(processor PrescriptionProcessor, archive ObjectPutter, publisher kafka.Publisher) PrescriptionService {
	if publisher == nil {
		publisher = kafka.NoopPublisher{}
	}
	return &prescriptionService{processor: processor, archive: archive, publisher: publisher, now: time.Now}
}

func (s *prescriptionService) Analyze(ctx context.Context, fileName string, data []byte) (*PrescriptionResult, error) {
	requestID := uuid.NewString()
	run, err := s.processor.Process(ctx, requestID, data, fileName)
	if err != nil {
		return nil, err
	}

	result := &PrescriptionResult{
		RequestID:       requestID,
		ExtractedText:   run.ExtractedText,
		Recommendations: run.Recommendations,
	}

	// 归档与事件发布都是附带动作，失败不影响本次响应
	if s.archive != nil {
		object := fmt.Sprintf("prescriptions/%s/%s.pdf", s.now().Format("2006-01-02"), requestID)
		if err := s.archive.Put(ctx, object, data, "application/pdf"); err != nil {
			log.Warnf("[PrescriptionService] 处方归档失败, RequestID: %s, error: %v", requestID, err)
		} else {
			result.ArchiveObject = object
		}
	}

	ids := make([]string, 0, len(run.Recommendations))
	for _, rec := range run.Recommendations {
		ids = append(ids, rec.ID)
	}
	event := events.PrescriptionAnalyzed{
		RequestID:     requestID,
		FileName:      fileName,
		ArchiveObject: result.ArchiveObject,
		ChunkCount:    len(run.Chunks),
		ExtractedText: run.ExtractedText,
		MedicineIDs:   ids,
		At:            s.now(),
	}
	if err := s.publisher.Publish(ctx, requestID, event); err != nil {
		log.Warnf("[PrescriptionService] 发布分析事件失败, RequestID: %s, error: %v", requestID, err)
	}
	return result, nil
}
