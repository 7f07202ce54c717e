package middleware

import (
	"github.com/gin-gonic/gin"

	"medimate-go/pkg/metrics"
)

// Metrics 按路由模板统计请求数。未匹配的路由统一记为 "unmatched"。
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.IncRequest(path, c.Writer.Status())
	}
}
