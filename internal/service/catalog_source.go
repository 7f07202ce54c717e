package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"medimate-go/internal/model"
	"medimate-go/internal/repository"
	"medimate-go/pkg/log"
	"medimate-go/pkg/storage"
)

// ErrCatalogUnavailable 表示目录来源不存在或无法访问，服务应退化为仅问答模式。
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// CatalogSource 提供药品目录的快照。
type CatalogSource interface {
	Load(ctx context.Context) ([]model.MedicineRecord, error)
	Name() string
}

// ObjectGetter 读取对象存储中的对象，*storage.ObjectStore 满足该接口。
type ObjectGetter interface {
	Get(ctx context.Context, objectName string) ([]byte, error)
}

type fileCatalogSource struct {
	path string
}

// NewFileCatalogSource 从本地 JSON 文件读取目录。
func NewFileCatalogSource(path string) CatalogSource {
	return &fileCatalogSource{path: path}
}

func (s *fileCatalogSource) Name() string { return "file:" + s.path }

func (s *fileCatalogSource) Load(_ context.Context) ([]model.MedicineRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found", ErrCatalogUnavailable, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return parseCatalog(s.Name(), data)
}

type objectCatalogSource struct {
	objects ObjectGetter
	object  string
}

// NewObjectCatalogSource 从对象存储中的 JSON 对象读取目录。
func NewObjectCatalogSource(objects ObjectGetter, object string) CatalogSource {
	return &objectCatalogSource{objects: objects, object: object}
}

func (s *objectCatalogSource) Name() string { return "minio:" + s.object }

func (s *objectCatalogSource) Load(ctx context.Context) ([]model.MedicineRecord, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("%w: object storage not configured", ErrCatalogUnavailable)
	}
	data, err := s.objects.Get(ctx, s.object)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: object %s not found", ErrCatalogUnavailable, s.object)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return parseCatalog(s.Name(), data)
}

type storeCatalogSource struct {
	repo repository.MedicineRepository
}

// NewStoreCatalogSource 直接读取目录存储中的全部记录。
func NewStoreCatalogSource(repo repository.MedicineRepository) CatalogSource {
	return &storeCatalogSource{repo: repo}
}

func (s *storeCatalogSource) Name() string { return "store" }

func (s *storeCatalogSource) Load(ctx context.Context) ([]model.MedicineRecord, error) {
	records, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return records, nil
}

func parseCatalog(name string, data []byte) ([]model.MedicineRecord, error) {
	records, skipped, err := model.ParseMedicineRecords(data)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Warnf("[CatalogSource] %s 中有 %d 条记录缺少 _id，已跳过", name, skipped)
	}
	return records, nil
}

// LoadCatalog 从来源读取目录快照。
func LoadCatalog(ctx context.Context, src CatalogSource) ([]model.MedicineRecord, error) {
	log.Infof("[CatalogService] 从 %s 读取药品目录", src.Name())
	records, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	log.Infof("[CatalogService] 读取到 %d 条药品记录", len(records))
	return records, nil
}

// SeedCatalog 按 _id 把记录写入目录存储，返回写入条数。遇到第一个错误即停止。
func SeedCatalog(ctx context.Context, repo repository.MedicineRepository, records []model.MedicineRecord) (int, error) {
	for i, rec := range records {
		if err := repo.Upsert(ctx, rec); err != nil {
			return i, fmt.Errorf("upsert medicine %s: %w", rec.ID, err)
		}
	}
	log.Infof("[CatalogService] 已写入 %d 条药品记录", len(records))
	return len(records), nil
}
