// Package bootstrap 根据配置构造各个外部依赖，供 server 与 catalogctl 共用。
package bootstrap

import (
	"context"
	"fmt"

	"medimate-go/internal/config"
	"medimate-go/internal/model"
	"medimate-go/internal/repository"
	"medimate-go/internal/service"
	"medimate-go/pkg/cache"
	"medimate-go/pkg/database"
	"medimate-go/pkg/embedding"
	"medimate-go/pkg/es"
	"medimate-go/pkg/log"
	"medimate-go/pkg/qdrant"
	"medimate-go/pkg/retry"
	"medimate-go/pkg/storage"
	"medimate-go/pkg/vectorstore"
)

// Cleanup 释放构造时打开的资源。
type Cleanup func()

func noop() {}

// Embedders 区分检索与目录构建两种用途的 Embedding 客户端。
// Query 用于处方切片与检索提示，不经过磁盘缓存，请求数据不会落盘；
// Build 只用于目录文本，配置了 cache_dir 时带 BadgerDB 缓存。
type Embedders struct {
	Query embedding.Client
	Build embedding.Client
}

// NewEmbedders 创建 Embedding 客户端；配置了 cache_dir 时为目录构建加一层 BadgerDB 缓存。
func NewEmbedders(cfg *config.Config) (Embedders, Cleanup, error) {
	client := embedding.NewClient(cfg.OpenAI, cfg.Timeouts.Embedding, retry.FromConfig(cfg.Retry))
	if cfg.Catalog.CacheDir == "" {
		return Embedders{Query: client, Build: client}, noop, nil
	}
	c, err := cache.Open(cfg.Catalog.CacheDir)
	if err != nil {
		return Embedders{}, nil, err
	}
	log.Infof("目录 Embedding 缓存已启用: %s, 已缓存 %d 条", cfg.Catalog.CacheDir, c.Len())
	build := embedding.NewCachedClient(client, c, cfg.OpenAI.EmbeddingDimensions)
	return Embedders{Query: client, Build: build}, func() {
		if err := c.Close(); err != nil {
			log.Warnf("关闭 Embedding 缓存失败: %v", err)
		}
	}, nil
}

// OpenMedicineRepository 按 catalog.store_driver 连接目录存储。
func OpenMedicineRepository(ctx context.Context, cfg *config.Config) (repository.MedicineRepository, Cleanup, error) {
	switch cfg.Catalog.StoreDriver {
	case "mysql":
		db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.AutoMigrate(&model.MedicineRow{}); err != nil {
			return nil, nil, fmt.Errorf("migrate medicines table: %w", err)
		}
		return repository.NewGormMedicineRepository(db), func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}, nil
	case "mongo", "":
		client, coll, err := database.NewMongo(ctx, cfg.Database.Mongo)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewMongoMedicineRepository(coll), func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warnf("断开 MongoDB 连接失败: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported catalog store driver: %s", cfg.Catalog.StoreDriver)
	}
}

// OpenIndexStore 按 catalog.index_backend 创建目录索引的向量存储。
func OpenIndexStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	dims := cfg.OpenAI.EmbeddingDimensions
	switch cfg.Catalog.IndexBackend {
	case "elasticsearch":
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		return es.NewStore(ctx, client, cfg.Elasticsearch.IndexName, dims)
	case "qdrant":
		return qdrant.NewStore(ctx, cfg.Qdrant, dims)
	case "memory", "":
		return vectorstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported catalog index backend: %s", cfg.Catalog.IndexBackend)
	}
}

// OpenObjectStore 在配置了 MinIO 时连接对象存储，否则返回 nil。
func OpenObjectStore(ctx context.Context, cfg *config.Config) *storage.ObjectStore {
	if cfg.MinIO.Endpoint == "" {
		return nil
	}
	objects, err := storage.NewObjectStore(ctx, cfg.MinIO)
	if err != nil {
		log.Warnf("MinIO 不可用, 目录对象与处方归档将被禁用: %v", err)
		return nil
	}
	return objects
}

// CatalogSource 按 catalog.source 选择目录来源。objects 可以为 nil。
func CatalogSource(cfg *config.Config, objects *storage.ObjectStore, repo repository.MedicineRepository) service.CatalogSource {
	switch cfg.Catalog.Source {
	case "minio":
		var getter service.ObjectGetter
		if objects != nil {
			getter = objects
		}
		return service.NewObjectCatalogSource(getter, cfg.Catalog.Object)
	case "store":
		return service.NewStoreCatalogSource(repo)
	default:
		return service.NewFileCatalogSource(cfg.Catalog.File)
	}
}

// BuildOptions 返回目录索引构建参数。
func BuildOptions(cfg *config.Config, build embedding.Client) service.CatalogBuildOptions {
	return service.CatalogBuildOptions{
		BatchSize:     cfg.Catalog.EmbedBatchSize,
		Workers:       cfg.Catalog.EmbedWorkers,
		BuildEmbedder: build,
	}
}
