// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"medimate-go/internal/config"
	"medimate-go/pkg/log"
)

// Publisher 将事件以 JSON 形式发布到消息队列。
type Publisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type writerPublisher struct {
	writer messageWriter
}

// NewPublisher 初始化 Kafka 生产者。未启用时返回一个什么也不做的 Publisher。
func NewPublisher(cfg config.KafkaConfig) Publisher {
	if !cfg.Enabled {
		log.Info("Kafka 未启用，事件发布为空操作")
		return NoopPublisher{}
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &writerPublisher{writer: w}
}

func (p *writerPublisher) Publish(ctx context.Context, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (p *writerPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher 丢弃所有事件。
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NoopPublisher) Close() error { return nil }
