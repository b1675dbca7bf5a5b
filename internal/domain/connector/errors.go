package connector

import (
	"errors"
	"fmt"
)

// 生命周期错误
var (
	// ErrNoListenerEnabled http 与 https 均未启用
	ErrNoListenerEnabled = errors.New("either the http connector or the https connector has to be started")
	// ErrAlreadyStarted 连接器已在运行
	ErrAlreadyStarted = errors.New("connector is already running")
	// ErrPortChangeAfterStart 节点绑定后修改端口
	ErrPortChangeAfterStart = errors.New("change of port only before startup")
	// ErrIllegalPort 端口号非法
	ErrIllegalPort = errors.New("illegal port number")
	// ErrHandlerAttachTimeout 等待监听器处理器就绪超时
	ErrHandlerAttachTimeout = errors.New("timed out waiting for listener handler")
)

// 请求错误（客户端可恢复）
var (
	// ErrAuthenticationFailed 凭据无法解锁声明的身份
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrAccessDenied 身份有效但无权执行该操作
	ErrAccessDenied = errors.New("access denied")
	// ErrNoSession 会话不存在或已过期，需要重新认证
	ErrNoSession = errors.New("no valid session")
	// ErrNotFound 服务或方法不存在
	ErrNotFound = errors.New("not found")
	// ErrAgentNotKnown 节点不认识该 agent
	ErrAgentNotKnown = errors.New("agent not known")
)

// StartError 启动失败，包装根因
type StartError struct {
	// Stage 失败阶段，例如 "log", "http", "https"
	Stage string
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("connector startup failed at %s: %v", e.Stage, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// ServiceError 服务方法内部抛出的错误
type ServiceError struct {
	Service string
	Method  string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("remote error in %s/%s: %v", e.Service, e.Method, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsSecurityError 是否为认证或授权类错误
func IsSecurityError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrNoSession)
}
