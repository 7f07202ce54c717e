// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"medimate-go/internal/config"
	"medimate-go/pkg/log"
)

// ErrObjectNotFound 表示请求的对象在存储桶中不存在。
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore 封装了对单个存储桶的读写。
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// NewObjectStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewObjectStore(ctx context.Context, cfg config.MinIOConfig) (*ObjectStore, error) {
	// 1. 初始化 MinIO 客户端
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	bucketName := cfg.BucketName
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
	return &ObjectStore{client: client, bucket: bucketName}, nil
}

// Get 读取整个对象。对象不存在时返回 ErrObjectNotFound。
func (s *ObjectStore) Get(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	defer obj.Close()

	// GetObject 是惰性的，Stat 才会真正访问服务端
	if _, err := obj.Stat(); err != nil {
		return nil, translate(err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(err)
	}
	return data, nil
}

// Put 写入一个对象，已存在的同名对象会被覆盖。
func (s *ObjectStore) Put(ctx context.Context, objectName string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		log.Errorf("上传对象 '%s' 到 MinIO 失败: %v", objectName, err)
		return fmt.Errorf("put object %s: %w", objectName, err)
	}
	return nil
}

func translate(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, resp.Message)
	}
	return err
}
