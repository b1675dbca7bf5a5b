package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nodegate/backend/internal/interfaces/http/response"
)

// RequestIDHeader 请求 ID 响应头
const RequestIDHeader = "X-Request-Id"

// RequestLogger 记录每个请求的方法、路径、状态和耗时
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= 500 {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "Request handled",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		)
	}
}

// RequestRecorder 记录请求事件
type RequestRecorder interface {
	Request(ctx context.Context, path string)
}

// RequestEvents 把每个请求交给事件日志
func RequestEvents(rec RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec.Request(c.Request.Context(), c.Request.URL.Path)
		c.Next()
	}
}

// Available 关闭后拒绝新请求
func Available(closed func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if closed() {
			response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, response.MessageUnavailable)
			return
		}
		c.Next()
	}
}
