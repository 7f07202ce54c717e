package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"medimate-go/internal/apperr"
	"medimate-go/internal/config"
	"medimate-go/internal/model"
	"medimate-go/internal/repository"
	"medimate-go/pkg/log"
)

// RecommendationService 把抽取出的药品文本解析为目录中的推荐记录。
type RecommendationService struct {
	index        *CatalogIndex
	repo         repository.MedicineRepository
	topK         int
	workers      int
	fetchTimeout time.Duration
}

// NewRecommendationService 创建一个新的 RecommendationService 实例。index 可以为 nil（仅问答模式）。
func NewRecommendationService(index *CatalogIndex, repo repository.MedicineRepository, cfg config.RecommendationConfig, fetchTimeout time.Duration) *RecommendationService {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	workers := cfg.FetchWorkers
	if workers <= 0 {
		workers = 4
	}
	return &RecommendationService{
		index:        index,
		repo:         repo,
		topK:         topK,
		workers:      workers,
		fetchTimeout: fetchTimeout,
	}
}

// Recommend 使用启动时构建的目录索引解析推荐。
func (s *RecommendationService) Recommend(ctx context.Context, hint string) (model.RecommendationSet, error) {
	return s.Resolve(ctx, hint, s.index)
}

// Resolve 检索目录索引，按首次出现顺序去重 _id，再逐条从目录存储中取回完整记录。
// 索引缺失、无命中或没有可解析的 _id 时返回空结果而不是错误。
func (s *RecommendationService) Resolve(ctx context.Context, hint string, index *CatalogIndex) (model.RecommendationSet, error) {
	recs := model.RecommendationSet{}
	if strings.TrimSpace(hint) == "" || index.Len() == 0 {
		return recs, nil
	}

	// 1. 相似度检索
	entries, err := index.Search(ctx, hint, s.topK)
	if err != nil {
		log.Errorf("[RecommendationService] 目录检索失败: %v", err)
		return nil, fmt.Errorf("search catalog: %w", err)
	}
	log.Infof("[RecommendationService] 步骤1: 目录检索命中 %d 条", len(entries))

	// 2. 解析并去重 _id
	ids := ExtractRecordIDs(entries)
	if len(ids) == 0 {
		return recs, nil
	}
	log.Infof("[RecommendationService] 步骤2: 去重后得到 %d 个 _id", len(ids))

	// 3. 并发取回记录，结果按 ids 的顺序组装
	fetched := make([]*model.MedicineRecord, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			rec, err := s.fetch(gctx, id)
			if err != nil {
				// 单条失败只跳过该记录
				log.Warnf("[RecommendationService] %v", apperr.New(apperr.ErrRecordFetch, "RecommendationService.fetch", err))
				return nil
			}
			fetched[i] = rec
			return nil
		})
	}
	_ = g.Wait()

	for i, rec := range fetched {
		if rec == nil {
			log.Infof("[RecommendationService] 记录 %s 不存在或取回失败, 已跳过", ids[i])
			continue
		}
		recs = append(recs, *rec)
	}
	log.Infof("[RecommendationService] 步骤3: 生成 %d 条推荐", len(recs))
	return recs, nil
}

func (s *RecommendationService) fetch(ctx context.Context, id string) (*model.MedicineRecord, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	return rec, nil
}

// ExtractRecordIDs 从序列化条目中取出 _id，保留首次出现的顺序并去重。
// 无法解析或缺少 _id 的条目记录警告后跳过。
func ExtractRecordIDs(entries []string) []string {
	seen := orderedmap.New[string, struct{}]()
	for _, entry := range entries {
		id, ok := recordID(entry)
		if !ok {
			log.Warnf("[RecommendationService] 无法从目录条目中解析 _id, 已跳过: %.80s", entry)
			continue
		}
		seen.Set(id, struct{}{})
	}
	ids := make([]string, 0, seen.Len())
	for pair := seen.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

func recordID(entry string) (string, bool) {
	if !gjson.Valid(entry) {
		return "", false
	}
	v := gjson.Get(entry, "_id")
	if v.IsObject() {
		v = v.Get("$oid")
	}
	switch v.Type {
	case gjson.String, gjson.Number:
		if id := v.String(); id != "" {
			return id, true
		}
	}
	return "", false
}
