package main

import (
	"context"
	"errors"

	"medimate-go/internal/bootstrap"
	"medimate-go/internal/config"
	"medimate-go/internal/repository"
	"medimate-go/internal/service"
	"medimate-go/pkg/log"
	"medimate-go/pkg/storage"
)

// loadCatalogIndex 读取目录并建立索引。任何一步失败都退化为仅问答模式，返回 nil。
// 持久化后端中已有条目且目录来源不可用时，直接复用已有索引。
func loadCatalogIndex(ctx context.Context, cfg *config.Config, embedders bootstrap.Embedders, repo repository.MedicineRepository, objects *storage.ObjectStore) *service.CatalogIndex {
	store, err := bootstrap.OpenIndexStore(ctx, cfg)
	if err != nil {
		log.Warnf("目录索引后端不可用, 进入仅问答模式: %v", err)
		return nil
	}

	records, err := service.LoadCatalog(ctx, bootstrap.CatalogSource(cfg, objects, repo))
	if err != nil {
		if errors.Is(err, service.ErrCatalogUnavailable) {
			if existing, ierr := service.NewCatalogIndex(ctx, store, embedders.Query); ierr == nil && existing.Len() > 0 {
				log.Warnf("目录来源不可用 (%v), 复用已有索引, 条目数: %d", err, existing.Len())
				return existing
			}
		}
		log.Warnf("药品目录不可用, 进入仅问答模式: %v", err)
		_ = store.Close()
		return nil
	}

	index, err := service.BuildCatalogIndex(ctx, embedders.Query, store, records, bootstrap.BuildOptions(cfg, embedders.Build))
	if err != nil {
		log.Warnf("构建目录索引失败, 进入仅问答模式: %v", err)
		_ = store.Close()
		return nil
	}
	return index
}
