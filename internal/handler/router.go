package handler

import (
	"github.com/gin-gonic/gin"

	"medimate-go/internal/middleware"
	"medimate-go/pkg/metrics"
)

// NewRouter 创建路由引擎并注册所有路由。m 可以为 nil。
func NewRouter(chat *ChatHandler, stream *ChatStreamHandler, history *HistoryHandler, m *metrics.Metrics) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(), middleware.Metrics(m))

	r.GET("/", Health)
	r.POST("/chat", chat.Chat)
	r.GET("/chat/ws", stream.Handle)
	r.GET("/chat/history", history.GetHistory)
	r.GET("/metrics", gin.WrapH(m.Handler()))
	return r
}
