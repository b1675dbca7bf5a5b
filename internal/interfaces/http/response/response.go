package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误消息，客户端按 message 区分失败类型
const (
	MessageBadRequest           = "bad_request"
	MessageAuthenticationFailed = "authentication_failed"
	MessageNoSession            = "no_session"
	MessageAccessDenied         = "access_denied"
	MessageNotFound             = "not_found"
	MessageRequestTooLarge      = "request_too_large"
	MessageServerError          = "server_error"
	MessageUnavailable          = "unavailable"
)

// 错误码
const (
	CodeBadRequest           = 400001
	CodeAuthenticationFailed = 401001
	CodeNoSession            = 401002
	CodeAccessDenied         = 403001
	CodeNotFound             = 404001
	CodeRequestTooLarge      = 413001
	CodeServerError          = 500001
	CodeUnavailable          = 503001
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, errCode int, message string) {
	c.AbortWithStatusJSON(httpCode, ErrorResponse{
		Code:    errCode,
		Message: message,
	})
}

// ErrorWithDetail 带详情的错误响应
func ErrorWithDetail(c *gin.Context, httpCode int, errCode int, message, detail string) {
	c.AbortWithStatusJSON(httpCode, ErrorResponse{
		Code:    errCode,
		Message: message,
		Detail:  detail,
	})
}
