// Package qdrant 提供了基于 Qdrant 的向量存储实现。
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	qd "github.com/qdrant/go-client/qdrant"

	"medimate-go/internal/config"
	"medimate-go/pkg/log"
	"medimate-go/pkg/vectorstore"
)

const (
	payloadEntryID = "entry_id"
	payloadText    = "text"
	// 元数据键在 payload 中统一加前缀，避免与保留字段冲突。
	metaPrefix = "meta_"
)

// Store 是以 Qdrant collection 为后端的向量存储。
type Store struct {
	client     *qd.Client
	collection string
	dims       int
}

var _ vectorstore.Store = (*Store)(nil)

// NewStore 连接 Qdrant 并确保 collection 存在，dims 为向量维度。
func NewStore(ctx context.Context, cfg config.QdrantConfig, dims int) (*Store, error) {
	host, port, err := parseAddress(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qd.NewClient(&qd.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	s := &Store{client: client, collection: cfg.Collection, dims: dims}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// parseAddress 解析 gRPC 地址，未指定端口时使用 6334。
func parseAddress(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant URL: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", 0, fmt.Errorf("invalid qdrant URL: %q", raw)
	}
	port := 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid qdrant port: %w", err)
		}
	}
	return host, port, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if exists {
		log.Infof("[QdrantStore] collection '%s' 已存在", s.collection)
		return nil
	}
	err = s.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     uint64(s.dims),
			Distance: qd.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}
	log.Infof("[QdrantStore] collection '%s' 创建成功, 维度: %d", s.collection, s.dims)
	return nil
}

// pointID 把任意条目 ID 映射为稳定的 UUID，Qdrant 只接受 UUID 或整数 ID。
func pointID(entryID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(entryID)).String()
}

func (s *Store) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*qd.PointStruct, 0, len(entries))
	for _, e := range entries {
		payload := map[string]*qd.Value{
			payloadEntryID: qd.NewValueString(e.ID),
			payloadText:    qd.NewValueString(e.Text),
		}
		for k, v := range e.Metadata {
			payload[metaPrefix+k] = qd.NewValueString(v)
		}
		points = append(points, &qd.PointStruct{
			Id:      qd.NewID(pointID(e.ID)),
			Vectors: qd.NewVectors(e.Vector...),
			Payload: payload,
		})
	}
	_, err := s.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qd.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points to collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]vectorstore.Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	points, err := s.client.Query(ctx, &qd.QueryPoints{
		CollectionName: s.collection,
		Query:          qd.NewQuery(vector...),
		WithPayload:    qd.NewWithPayload(true),
		Limit:          qd.PtrOf(uint64(topK)),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}
	hits := make([]vectorstore.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, vectorstore.Hit{Entry: entryFromPayload(p.Payload), Score: float64(p.Score)})
	}
	return hits, nil
}

func entryFromPayload(payload map[string]*qd.Value) vectorstore.Entry {
	e := vectorstore.Entry{Metadata: map[string]string{}}
	for k, v := range payload {
		switch {
		case k == payloadEntryID:
			e.ID = v.GetStringValue()
		case k == payloadText:
			e.Text = v.GetStringValue()
		case len(k) > len(metaPrefix) && k[:len(metaPrefix)] == metaPrefix:
			e.Metadata[k[len(metaPrefix):]] = v.GetStringValue()
		}
	}
	return e
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qd.CountPoints{
		CollectionName: s.collection,
		Exact:          qd.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count failed: %w", err)
	}
	return int(n), nil
}

// Reset 删除并重建 collection。
func (s *Store) Reset(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("delete collection %s: %w", s.collection, err)
	}
	return s.ensureCollection(ctx)
}

func (s *Store) Close() error {
	return s.client.Close()
}
