// Package es 提供了基于 Elasticsearch kNN 检索的向量存储实现。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"medimate-go/internal/config"
	"medimate-go/internal/model"
	"medimate-go/pkg/log"
	"medimate-go/pkg/vectorstore"
)

// Store 是以 Elasticsearch 索引为后端的向量存储。
type Store struct {
	client    *elasticsearch.Client
	indexName string
	dims      int
}

var _ vectorstore.Store = (*Store)(nil)

// NewClient 根据配置创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// NewStore 创建向量存储并确保索引存在，dims 为向量维度。
func NewStore(ctx context.Context, client *elasticsearch.Client, indexName string, dims int) (*Store, error) {
	s := &Store{client: client, indexName: indexName, dims: dims}
	if err := s.createIndexIfNotExists(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (s *Store) createIndexIfNotExists(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.indexName}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", s.indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"entry_id": { "type": "keyword" },
				"record_id": { "type": "keyword" },
				"text_content": { "type": "text", "index": false },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, s.dims)

	res, err = s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", s.indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", s.indexName)
	return nil
}

// Upsert 逐条写入文档，全部写完后刷新一次索引。
func (s *Store) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	for _, e := range entries {
		doc := model.EsDocument{
			EntryID:      e.ID,
			RecordID:     e.Metadata[vectorstore.MetaRecordID],
			TextContent:  e.Text,
			Vector:       e.Vector,
			ModelVersion: e.Metadata[vectorstore.MetaModelVersion],
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		req := esapi.IndexRequest{
			Index:      s.indexName,
			DocumentID: e.ID,
			Body:       bytes.NewReader(docBytes),
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return err
		}
		if res.IsError() {
			log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
			res.Body.Close()
			return errors.New("failed to index document")
		}
		res.Body.Close()
	}

	res, err := s.client.Indices.Refresh(
		s.client.Indices.Refresh.WithContext(ctx),
		s.client.Indices.Refresh.WithIndex(s.indexName),
	)
	if err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("refresh index: %s", res.String())
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]vectorstore.Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	numCandidates := topK * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": numCandidates,
		},
		"size": topK,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[ESStore] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsDocument `json:"_source"`
				Score  float64          `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]vectorstore.Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, vectorstore.Hit{
			Entry: vectorstore.Entry{
				ID:     h.Source.EntryID,
				Text:   h.Source.TextContent,
				Vector: h.Source.Vector,
				Metadata: map[string]string{
					vectorstore.MetaRecordID:     h.Source.RecordID,
					vectorstore.MetaModelVersion: h.Source.ModelVersion,
				},
			},
			Score: h.Score,
		})
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.indexName),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch count returned an error: %s", res.Status())
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return body.Count, nil
}

// Reset 删除并重建索引。
func (s *Store) Reset(ctx context.Context) error {
	res, err := s.client.Indices.Delete([]string{s.indexName}, s.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete index: %s", res.Status())
	}
	return s.createIndexIfNotExists(ctx)
}

func (s *Store) Close() error { return nil }
