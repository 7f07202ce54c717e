package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medimate-go/internal/apperr"
	"medimate-go/internal/service"
)

// HistoryHandler 返回会话中已保存的对话记录。
type HistoryHandler struct {
	chatService service.ChatService
}

// NewHistoryHandler 创建一个新的 HistoryHandler。
func NewHistoryHandler(chatService service.ChatService) *HistoryHandler {
	return &HistoryHandler{chatService: chatService}
}

// GetHistory 处理 GET /chat/history?session_token=。
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	history, err := h.chatService.History(c.Request.Context(), c.Query("session_token"))
	if err != nil {
		status := apperr.HTTPStatus(err)
		if status == http.StatusBadRequest {
			c.JSON(status, gin.H{"error": apperr.Message(err)})
			return
		}
		c.JSON(status, gin.H{"error": "Failed to retrieve conversation history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}
