package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"medimate-go/internal/apperr"
	"medimate-go/internal/service"
	"medimate-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// wsQuestion 是客户端通过 WebSocket 发送的 JSON 消息，纯文本消息视为问题本身。
type wsQuestion struct {
	Question string `json:"question"`
}

// ChatStreamHandler 负责处理 WebSocket 流式聊天连接。
type ChatStreamHandler struct {
	chatService service.ChatService
}

// NewChatStreamHandler 创建一个新的 ChatStreamHandler。
func NewChatStreamHandler(chatService service.ChatService) *ChatStreamHandler {
	return &ChatStreamHandler{chatService: chatService}
}

// Handle 处理一个传入的 WebSocket 连接。同一连接上的后续提问沿用服务端返回的会话令牌。
func (h *ChatStreamHandler) Handle(c *gin.Context) {
	sessionToken := c.Query("session_token")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Info("WebSocket 连接已建立")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		question := string(message)
		if len(message) > 0 && message[0] == '{' {
			var q wsQuestion
			if err := json.Unmarshal(message, &q); err == nil {
				question = q.Question
			}
		}

		newToken, err := h.chatService.StreamResponse(c.Request.Context(), sessionToken, question, conn)
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			errResp := map[string]interface{}{"error": apperr.Message(err), "timestamp": time.Now().UnixMilli()}
			b, _ := json.Marshal(errResp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			if apperr.HTTPStatus(err) == http.StatusBadRequest {
				continue
			}
			break
		}
		sessionToken = newToken
	}
}
