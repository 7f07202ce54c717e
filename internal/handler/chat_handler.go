// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"medimate-go/internal/apperr"
	"medimate-go/internal/pipeline"
	"medimate-go/internal/service"
	"medimate-go/pkg/log"
)

const recommendationMessage = "Based on the prescription, here are the recommended medicines:"

// ChatRequest 是 JSON 提问的请求体。
type ChatRequest struct {
	Question     string `json:"question"`
	SessionToken string `json:"session_token"`
}

// ChatHandler 处理 /chat 上的问答与处方上传。
type ChatHandler struct {
	chatService         service.ChatService
	prescriptionService service.PrescriptionService
	maxUploadBytes      int64
}

// NewChatHandler 创建一个新的 ChatHandler。maxUploadMB <= 0 表示不限制上传大小。
func NewChatHandler(chatService service.ChatService, prescriptionService service.PrescriptionService, maxUploadMB int) *ChatHandler {
	return &ChatHandler{
		chatService:         chatService,
		prescriptionService: prescriptionService,
		maxUploadBytes:      int64(maxUploadMB) << 20,
	}
}

// Chat 根据请求的 Content-Type 分派到问答或处方分析。
func (h *ChatHandler) Chat(c *gin.Context) {
	switch c.ContentType() {
	case gin.MIMEJSON:
		h.ask(c)
	case gin.MIMEMultipartPOSTForm:
		h.analyzePrescription(c)
	default:
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported request format"})
	}
}

func (h *ChatHandler) ask(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Question is required"})
		return
	}

	answer, sessionToken, err := h.chatService.Ask(c.Request.Context(), req.SessionToken, req.Question)
	if err != nil {
		if apperr.HTTPStatus(err) == http.StatusBadRequest {
			c.JSON(http.StatusBadRequest, gin.H{"message": apperr.Message(err)})
			return
		}
		log.Errorf("[ChatHandler] 问答失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error processing request: " + apperr.Message(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": answer, "session_token": sessionToken})
}

func (h *ChatHandler) analyzePrescription(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	fileHeader, err := c.FormFile("pdf_file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		case errors.Is(err, http.ErrMissingFile):
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported request format"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Error processing request: " + err.Error()})
		}
		return
	}
	if !pipeline.IsSupportedDocument(fileHeader.Filename) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Invalid file format"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error processing request: " + err.Error()})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error processing request: " + err.Error()})
		return
	}

	result, err := h.prescriptionService.Analyze(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		status := apperr.HTTPStatus(err)
		log.Errorf("[ChatHandler] 处方分析失败, 文件: %s, 状态: %d, 错误: %v", fileHeader.Filename, status, err)
		if status == http.StatusUnsupportedMediaType {
			c.JSON(status, gin.H{"error": apperr.Message(err)})
			return
		}
		c.JSON(status, gin.H{"error": "Error processing request: " + apperr.Message(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        recommendationMessage,
		"recommendation": result.Recommendations,
		"extracted_text": result.ExtractedText,
	})
}
