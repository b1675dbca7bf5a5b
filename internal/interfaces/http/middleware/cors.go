package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// CORSConfig 跨域响应头配置
type CORSConfig struct {
	// Domain Access-Control-Allow-Origin，为空时放行任意来源
	Domain string
	// MaxAge 预检结果缓存秒数
	MaxAge int
}

// CORS 为每个响应附加跨域头，预检请求直接以 204 返回
func CORS(cfg CORSConfig) gin.HandlerFunc {
	origin := cfg.Domain
	if origin == "" {
		origin = "*"
	}
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Max-Age", maxAge)

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Session-Id")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
