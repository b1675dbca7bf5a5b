package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/nodegate/backend/internal/interfaces/http/response"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// EnsureUTF8Body 把非 UTF-8 的请求体按 GBK 转码
// 部分 Windows 客户端以系统代码页发送 JSON，绑定前统一为 UTF-8
// 请求体超过 maxBytes 时返回 413，不读入内存
func EnsureUTF8Body(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.Request.Body.Close()
			tooLarge(c)
			return
		}

		// 分块传输时 ContentLength 为 -1，由 MaxBytesReader 截断
		raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes))
		c.Request.Body.Close()
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				tooLarge(c)
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			c.Next()
			return
		}

		body := raw
		if !utf8.Valid(raw) {
			if converted, err := decodeGBK(raw); err == nil && utf8.Valid(converted) {
				body = converted
			}
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Request.ContentLength = int64(len(body))
		c.Next()
	}
}

func tooLarge(c *gin.Context) {
	response.Error(c, http.StatusRequestEntityTooLarge, response.CodeRequestTooLarge, response.MessageRequestTooLarge)
}

func decodeGBK(b []byte) ([]byte, error) {
	return io.ReadAll(transform.NewReader(bytes.NewReader(b), simplifiedchinese.GBK.NewDecoder()))
}
