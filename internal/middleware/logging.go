// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"medimate-go/pkg/log"
)

// maxLoggedBody 是日志中保留的请求体和响应体的最大字节数。
const maxLoggedBody = 2048

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		if len(b) > room {
			w.body.Write(b[:room])
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// multipart 上传和 WebSocket 升级请求不记录请求体。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody []byte
		if c.Request.Body != nil && c.ContentType() == gin.MIMEJSON {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		upgrade := strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		if !upgrade {
			c.Writer = blw
		}

		c.Next()

		if len(requestBody) > maxLoggedBody {
			requestBody = requestBody[:maxLoggedBody]
		}
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", string(requestBody),
			"responseBody", blw.body.String(),
		)
	}
}
