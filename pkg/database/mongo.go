// Package database 负责创建各类数据库连接。
package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"medimate-go/internal/config"
	"medimate-go/pkg/log"
)

// NewMongo 连接 MongoDB 并返回目录集合。
func NewMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Collection, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	log.Infof("MongoDB connected successfully, database: %s, collection: %s", cfg.Database, cfg.Collection)
	return client, client.Database(cfg.Database).Collection(cfg.Collection), nil
}
