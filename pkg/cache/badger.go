// Package cache 提供基于 BadgerDB 的 Embedding 持久化缓存，重启后重建目录索引时可跳过已计算过的向量。
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "emb:"

// EmbeddingCache 以 (模型标识, 文本) 为键缓存向量。模型标识由调用方给出，embedding.NewCachedClient 使用 模型名/维度。
type EmbeddingCache struct {
	db *badger.DB
}

// Open 在指定目录打开（或创建）缓存。
func Open(dir string) (*EmbeddingCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开 Embedding 缓存 %s 失败: %w", dir, err)
	}
	return &EmbeddingCache{db: db}, nil
}

// Get 返回缓存中的向量；未命中时 ok 为 false。
func (c *EmbeddingCache) Get(model, text string) (vec []float32, ok bool, err error) {
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(model, text))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			vec, err = decodeVector(val)
			ok = err == nil
			return err
		})
	})
	return vec, ok, err
}

// Put 写入一条向量。
func (c *EmbeddingCache) Put(model, text string, vec []float32) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(model, text), encodeVector(vec))
	})
}

// Len 返回缓存中的条目数。
func (c *EmbeddingCache) Len() int {
	n := 0
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

// Close 关闭底层数据库。
func (c *EmbeddingCache) Close() error {
	return c.db.Close()
}

func cacheKey(model, text string) []byte {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return []byte(keyPrefix + hex.EncodeToString(sum[:]))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("缓存向量长度非法: %d", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
