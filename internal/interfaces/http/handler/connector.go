package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	appconnector "github.com/nodegate/backend/internal/application/connector"
	"github.com/nodegate/backend/internal/application/session"
	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/infrastructure/eventsink"
	"github.com/nodegate/backend/internal/infrastructure/log"
	"github.com/nodegate/backend/internal/interfaces/http/response"
)

// SessionHeader 携带会话 ID 的请求头
const SessionHeader = "X-Session-Id"

// ConnectorHandler 连接、会话与服务调用处理器
type ConnectorHandler struct {
	rt     *appconnector.Runtime
	files  http.Handler
	logger *slog.Logger
}

// NewConnectorHandler 创建处理器，绑定一次运行的 Runtime
func NewConnectorHandler(rt *appconnector.Runtime) *ConnectorHandler {
	h := &ConnectorHandler{
		rt:     rt,
		logger: log.NewModuleLogger("http", "connector_handler"),
	}
	if rt.FileAccessEnabled() {
		h.files = http.FileServer(http.Dir(rt.Settings.FileDirectory))
	}
	return h
}

// ConnectRequest 建立会话请求
type ConnectRequest struct {
	AgentID    string `json:"agent_id" binding:"required"`
	Passphrase string `json:"passphrase"`
	TimeoutMS  *int64 `json:"timeout_ms"` // 缺省时使用默认超时
	Persistent bool   `json:"persistent"`
}

// SessionDTO 会话信息
type SessionDTO struct {
	SessionID  string `json:"session_id"`
	AgentID    string `json:"agent_id"`
	TimeoutMS  int64  `json:"timeout_ms"`
	Persistent bool   `json:"persistent"`
	ExpiresAt  int64  `json:"expires_at"` // Unix 毫秒时间戳
}

// InvokeRequest 服务调用请求
type InvokeRequest struct {
	Params []any `json:"params"`
}

// InvokeResult 服务调用结果
type InvokeResult struct {
	Result any `json:"result"`
}

func toSessionDTO(s *connector.Session) *SessionDTO {
	return &SessionDTO{
		SessionID:  s.ID,
		AgentID:    s.AgentID,
		TimeoutMS:  s.TimeoutMS,
		Persistent: s.Persistent,
		ExpiresAt:  s.ExpiresAt().UnixMilli(),
	}
}

// Connect 解锁 agent 并建立会话
// @Summary 建立会话
// @Tags 会话
// @Accept json
// @Produce json
// @Param body body ConnectRequest true "agent 凭据"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /connect [post]
func (h *ConnectorHandler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetail(c, http.StatusBadRequest, response.CodeBadRequest, response.MessageBadRequest, err.Error())
		return
	}

	s, err := h.rt.Gate.Connect(c.Request.Context(), session.ConnectRequest{
		AgentID:    req.AgentID,
		Passphrase: req.Passphrase,
		TimeoutMS:  req.TimeoutMS,
		Persistent: req.Persistent,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, toSessionDTO(s))
}

// Session 查询当前会话并刷新空闲计时
// @Summary 查询会话
// @Tags 会话
// @Produce json
// @Param X-Session-Id header string true "会话 ID"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Router /session [get]
func (h *ConnectorHandler) Session(c *gin.Context) {
	s, err := h.rt.Gate.Authenticate(c.Request.Context(), c.GetHeader(SessionHeader))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, toSessionDTO(s))
}

// Disconnect 结束会话
// @Summary 结束会话
// @Tags 会话
// @Produce json
// @Param X-Session-Id header string true "会话 ID"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Router /disconnect [post]
func (h *ConnectorHandler) Disconnect(c *gin.Context) {
	if err := h.rt.Gate.Disconnect(c.Request.Context(), c.GetHeader(SessionHeader)); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"disconnected": true})
}

// Invoke 调用 /<service>/<method>
// @Summary 调用服务方法
// @Tags 服务
// @Accept json
// @Produce json
// @Param X-Session-Id header string true "会话 ID"
// @Param service path string true "服务标识"
// @Param method path string true "方法名"
// @Param body body InvokeRequest false "调用参数"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /{service}/{method} [post]
func (h *ConnectorHandler) Invoke(c *gin.Context) {
	service, method, ok := splitInvocationPath(c.Request.URL.Path)
	if !ok {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, response.MessageNotFound)
		return
	}

	ctx := c.Request.Context()
	s, err := h.rt.Gate.Authenticate(ctx, c.GetHeader(SessionHeader))
	if err != nil {
		h.writeError(c, err)
		return
	}
	caller, err := h.rt.Gate.Authorize(ctx, s, service, method)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req InvokeRequest
	if c.Request.Body != nil {
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.ErrorWithDetail(c, http.StatusBadRequest, response.CodeBadRequest, response.MessageBadRequest, err.Error())
			return
		}
	}

	result, err := h.rt.Node.Invoke(ctx, &connector.Invocation{
		Caller:      caller,
		Service:     service,
		Method:      method,
		Params:      req.Params,
		PreferLocal: h.rt.Settings.PreferLocalServices,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, InvokeResult{Result: result})
}

// Files 在开启文件访问时提供静态文件
func (h *ConnectorHandler) Files(c *gin.Context) {
	if h.files == nil {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, response.MessageNotFound)
		return
	}
	h.files.ServeHTTP(c.Writer, c.Request)
}

// Fallback 未注册路由：POST 视为服务调用，GET 视为文件请求
func (h *ConnectorHandler) Fallback(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodPost:
		h.Invoke(c)
	case http.MethodGet, http.MethodHead:
		h.Files(c)
	default:
		response.Error(c, http.StatusNotFound, response.CodeNotFound, response.MessageNotFound)
	}
}

// splitInvocationPath 拆出服务标识与方法名
func splitInvocationPath(path string) (service, method string, ok bool) {
	service, ok = eventsink.ServiceFromPath(path)
	if !ok {
		return "", "", false
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	method = path[strings.LastIndex(path, "/")+1:]
	if method == "" {
		return "", "", false
	}
	return service, method, true
}

// writeError 把领域错误映射为 HTTP 状态
func (h *ConnectorHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, connector.ErrAuthenticationFailed):
		h.securityError(c, http.StatusUnauthorized, response.CodeAuthenticationFailed, response.MessageAuthenticationFailed, err)
	case errors.Is(err, connector.ErrNoSession):
		h.securityError(c, http.StatusUnauthorized, response.CodeNoSession, response.MessageNoSession, err)
	case errors.Is(err, connector.ErrAccessDenied):
		h.securityError(c, http.StatusForbidden, response.CodeAccessDenied, response.MessageAccessDenied, err)
	case errors.Is(err, connector.ErrNotFound):
		response.ErrorWithDetail(c, http.StatusNotFound, response.CodeNotFound, response.MessageNotFound, err.Error())
	default:
		h.rt.Sink.Error(err.Error())
		h.logger.Warn("Request failed", "path", c.Request.URL.Path, "error", err)
		response.ErrorWithDetail(c, http.StatusInternalServerError, response.CodeServerError, response.MessageServerError, remoteMessage(err))
	}
}

// securityError 安全类错误只在 printSecExceptions 时返回详情
func (h *ConnectorHandler) securityError(c *gin.Context, status, code int, message string, err error) {
	if !h.rt.PrintSecExceptions() {
		response.Error(c, status, code, message)
		return
	}
	h.logger.Warn("Security error", "path", c.Request.URL.Path, "error", err)
	response.ErrorWithDetail(c, status, code, message, err.Error())
}

// remoteMessage 服务方法错误只返回方法自身的消息
func remoteMessage(err error) string {
	var svcErr *connector.ServiceError
	if errors.As(err, &svcErr) && svcErr.Err != nil {
		return svcErr.Err.Error()
	}
	return err.Error()
}
