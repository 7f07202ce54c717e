// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"medimate-go/internal/apperr"
	"medimate-go/internal/config"
	"medimate-go/internal/model"
	"medimate-go/internal/repository"
	"medimate-go/pkg/llm"
	"medimate-go/pkg/log"
	"medimate-go/pkg/token"
)

// ChatService 定义了对话会话的操作接口。
type ChatService interface {
	// Ask 在 sessionToken 对应的会话中提问，返回回答与（可能新签发的）会话令牌。
	Ask(ctx context.Context, sessionToken, question string) (answer string, newToken string, err error)
	// StreamResponse 与 Ask 相同，但把回答分块写入 writer。
	StreamResponse(ctx context.Context, sessionToken, question string, writer llm.MessageWriter) (newToken string, err error)
	// History 返回会话中已保存的对话记录。
	History(ctx context.Context, sessionToken string) ([]model.ChatHistoryItem, error)
}

type chatService struct {
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	jwtManager       *token.JWTManager
	cfg              config.ConversationConfig
	model            string
	storeTimeout     time.Duration
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(llmClient llm.Client, conversationRepo repository.ConversationRepository, jwtManager *token.JWTManager, cfg config.ConversationConfig, model string, storeTimeout time.Duration) ChatService {
	if cfg.Persona == "" {
		cfg.Persona = config.DefaultPersona
	}
	if cfg.Welcome == "" {
		cfg.Welcome = config.DefaultWelcome
	}
	return &chatService{
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		jwtManager:       jwtManager,
		cfg:              cfg,
		model:            model,
		storeTimeout:     storeTimeout,
	}
}

// session 是一次请求解析出的会话状态。
type session struct {
	id      string
	token   string
	history []model.ChatMessage
}

func (s *chatService) Ask(ctx context.Context, sessionToken, question string) (string, string, error) {
	const op = "ChatService.Ask"
	if strings.TrimSpace(question) == "" {
		return "", "", apperr.Newf(apperr.ErrInvalidInput, op, "Question is required")
	}
	sess, err := s.openSession(ctx, sessionToken)
	if err != nil {
		return "", "", err
	}

	answer, err := s.llmClient.ChatMessages(ctx, s.composeMessages(sess.history, question), s.generationParams())
	if err != nil {
		log.Errorf("[ChatService] 调用聊天模型失败, session: %s, error: %v", sess.id, err)
		return "", "", apperr.New(apperr.ErrChatBackend, op, err)
	}

	s.saveExchange(sess, question, answer)
	return answer, sess.token, nil
}

func (s *chatService) StreamResponse(ctx context.Context, sessionToken, question string, writer llm.MessageWriter) (string, error) {
	const op = "ChatService.StreamResponse"
	if strings.TrimSpace(question) == "" {
		return "", apperr.Newf(apperr.ErrInvalidInput, op, "Question is required")
	}
	sess, err := s.openSession(ctx, sessionToken)
	if err != nil {
		return "", err
	}

	// 拦截 writer 以捕获完整答案，并包装为 JSON 分块
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: writer, writer: answerBuilder}

	err = s.llmClient.StreamChatMessages(ctx, s.composeMessages(sess.history, question), s.generationParams(), interceptor)
	if err != nil {
		log.Errorf("[ChatService] 流式调用聊天模型失败, session: %s, error: %v", sess.id, err)
		return "", apperr.New(apperr.ErrChatBackend, op, err)
	}

	sendCompletion(writer, sess.token)
	if fullAnswer := answerBuilder.String(); fullAnswer != "" {
		s.saveExchange(sess, question, fullAnswer)
	}
	return sess.token, nil
}

func (s *chatService) History(ctx context.Context, sessionToken string) ([]model.ChatHistoryItem, error) {
	const op = "ChatService.History"
	sessionID, err := s.jwtManager.VerifyToken(sessionToken)
	if err != nil {
		return nil, apperr.Newf(apperr.ErrInvalidInput, op, "invalid session token")
	}
	history, err := s.loadHistory(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	items := make([]model.ChatHistoryItem, 0, len(history))
	for _, m := range history {
		items = append(items, model.ChatHistoryItem{Role: m.Role, Content: m.Content, Timestamp: model.LocalTime(m.Timestamp)})
	}
	return items, nil
}

// openSession 校验会话令牌；令牌缺失或无效时开启一个新会话。
func (s *chatService) openSession(ctx context.Context, sessionToken string) (*session, error) {
	if sessionToken != "" {
		sessionID, err := s.jwtManager.VerifyToken(sessionToken)
		if err == nil {
			history, err := s.loadHistory(ctx, sessionID)
			if err != nil {
				// 读取失败时按空会话继续，回答仍然可用
				log.Errorf("[ChatService] 读取会话记录失败, session: %s, error: %v", sessionID, err)
				history = nil
			}
			return &session{id: sessionID, token: sessionToken, history: history}, nil
		}
		log.Warnf("[ChatService] 会话令牌无效, 开启新会话: %v", err)
	}

	sessionID := uuid.NewString()
	tok, err := s.jwtManager.GenerateToken(sessionID)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	log.Infof("[ChatService] 开启新会话: %s", sessionID)
	return &session{id: sessionID, token: tok}, nil
}

func (s *chatService) loadHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()
	history, _, err := s.conversationRepo.GetConversationHistory(ctx, sessionID)
	return history, err
}

// composeMessages 以设定与欢迎语开头，接着是历史记录和本轮提问。
func (s *chatService) composeMessages(history []model.ChatMessage, question string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+3)
	msgs = append(msgs,
		llm.Message{Role: "user", Content: s.cfg.Persona},
		llm.Message{Role: "assistant", Content: s.cfg.Welcome},
	)
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(msgs, llm.Message{Role: "user", Content: question})
}

// saveExchange 保存本轮问答。即使原始请求已被取消也要保存，失败只记录日志。
func (s *chatService) saveExchange(sess *session, question, answer string) {
	now := time.Now()
	history := append(sess.history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	ctx, cancel := s.withStoreTimeout(context.Background())
	defer cancel()
	if err := s.conversationRepo.UpdateConversationHistory(ctx, sess.id, history); err != nil {
		log.Errorf("[ChatService] 保存会话记录失败, session: %s, error: %v", sess.id, err)
	}
}

func (s *chatService) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *chatService) generationParams() *llm.GenerationParams {
	return &llm.GenerationParams{Model: s.model, Temperature: llm.Float(s.cfg.Temperature)}
}

// wsWriterInterceptor 是对 websocket 连接的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn   llm.MessageWriter
	writer *strings.Builder
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	b, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(w llm.MessageWriter, sessionToken string) {
	notif := map[string]interface{}{
		"type":          "completion",
		"status":        "finished",
		"session_token": sessionToken,
		"timestamp":     time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = w.WriteMessage(websocket.TextMessage, b)
}
