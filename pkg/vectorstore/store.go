// Package vectorstore 定义了向量存储的统一接口，以及一个进程内的实现。
package vectorstore

import (
	"context"
	"errors"
)

// ErrDimensionMismatch 表示写入或查询的向量维度与已有向量不一致。
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Entry 是向量存储中的一条记录。
type Entry struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// Hit 是一次相似度检索的命中结果，Score 越大越相似。
type Hit struct {
	Entry Entry
	Score float64
}

// Store 持久化向量并支持 top-k 相似度检索。
type Store interface {
	// Upsert 写入条目，ID 相同的条目会被覆盖。
	Upsert(ctx context.Context, entries []Entry) error
	// Search 返回与 vector 最相似的至多 topK 条结果，按相似度降序排列。
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	// Reset 清空全部条目。
	Reset(ctx context.Context) error
	Close() error
}

// 目录条目元数据中使用的键。
const (
	MetaRecordID     = "record_id"
	MetaModelVersion = "model_version"
)
