package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"medimate-go/internal/model"
)

// ConversationRepository 定义了会话对话记录的操作接口。
type ConversationRepository interface {
	// GetConversationHistory 返回会话的对话记录，会话不存在时返回 (nil, false, nil)。
	GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, bool, error)
	// UpdateConversationHistory 覆盖会话的对话记录，并刷新过期时间。
	UpdateConversationHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
	maxMessages int
}

// NewConversationRepository 创建一个基于 Redis 的 ConversationRepository。
// maxMessages 是保留的最近消息条数，ttl 是会话的空闲过期时间。
func NewConversationRepository(redisClient *redis.Client, ttl time.Duration, maxMessages int) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient, ttl: ttl, maxMessages: maxMessages}
}

func conversationKey(sessionID string) string {
	return fmt.Sprintf("conversation:%s", sessionID)
}

// GetConversationHistory 从 Redis 获取对话历史记录。
func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, bool, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, true, nil
}

// UpdateConversationHistory 在 Redis 中更新对话历史记录。
func (r *redisConversationRepository) UpdateConversationHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error {
	jsonData, err := json.Marshal(trimMessages(messages, r.maxMessages))
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, conversationKey(sessionID), jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

type memoryConversation struct {
	messages  []model.ChatMessage
	expiresAt time.Time
}

type memoryConversationRepository struct {
	mu          sync.Mutex
	sessions    map[string]memoryConversation
	ttl         time.Duration
	maxMessages int
	now         func() time.Time
}

// NewMemoryConversationRepository 创建一个进程内的 ConversationRepository，用于 Redis 不可用时。
func NewMemoryConversationRepository(ttl time.Duration, maxMessages int) ConversationRepository {
	return &memoryConversationRepository{
		sessions:    make(map[string]memoryConversation),
		ttl:         ttl,
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

func (r *memoryConversationRepository) GetConversationHistory(_ context.Context, sessionID string) ([]model.ChatMessage, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	if r.ttl > 0 && r.now().After(conv.expiresAt) {
		delete(r.sessions, sessionID)
		return nil, false, nil
	}
	out := make([]model.ChatMessage, len(conv.messages))
	copy(out, conv.messages)
	return out, true, nil
}

func (r *memoryConversationRepository) UpdateConversationHistory(_ context.Context, sessionID string, messages []model.ChatMessage) error {
	trimmed := trimMessages(messages, r.maxMessages)
	stored := make([]model.ChatMessage, len(trimmed))
	copy(stored, trimmed)

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweepExpired(now)
	r.sessions[sessionID] = memoryConversation{messages: stored, expiresAt: now.Add(r.ttl)}
	return nil
}

// sweepExpired 删除所有已过期的会话，调用方需持有锁。
func (r *memoryConversationRepository) sweepExpired(now time.Time) {
	if r.ttl <= 0 {
		return
	}
	for id, conv := range r.sessions {
		if now.After(conv.expiresAt) {
			delete(r.sessions, id)
		}
	}
}

// trimMessages 只保留最近 max 条消息，max <= 0 表示不限制。
func trimMessages(messages []model.ChatMessage, max int) []model.ChatMessage {
	if max > 0 && len(messages) > max {
		return messages[len(messages)-max:]
	}
	return messages
}
