package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// 调用结果分类，用 errors.Is 判断
var (
	// ErrUnableToConnect 连接器不可达
	ErrUnableToConnect = errors.New("unable to connect to connector")
	// ErrAuthenticationFailed 凭据被拒绝
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrTimeout 请求超时
	ErrTimeout = errors.New("request timed out")
	// ErrServerError 服务方法内部出错，RemoteError 携带远端消息
	ErrServerError = errors.New("remote server error")
	// ErrAccessDenied 无权调用
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound 服务或方法不存在
	ErrNotFound = errors.New("service or method not found")
	// ErrNoSession 会话失效，Invoke 会自动重连一次
	ErrNoSession = errors.New("no valid session")
)

// RemoteError 连接器返回的错误响应
type RemoteError struct {
	Status  int
	Message string
	Detail  string
	kind    error
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v (%d %s): %s", e.kind, e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("%v (%d %s)", e.kind, e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.kind
}

// RemoteMessage 服务端给出的详情，服务方法出错时为方法自身的消息
func (e *RemoteError) RemoteMessage() string {
	return e.Detail
}

// kindOf 按响应 message 归类
func kindOf(status int, message string) error {
	switch message {
	case "authentication_failed":
		return ErrAuthenticationFailed
	case "no_session":
		return ErrNoSession
	case "access_denied":
		return ErrAccessDenied
	case "not_found":
		return ErrNotFound
	case "unavailable":
		return ErrUnableToConnect
	}
	switch status {
	case 401:
		return ErrAuthenticationFailed
	case 403:
		return ErrAccessDenied
	case 404:
		return ErrNotFound
	case 503:
		return ErrUnableToConnect
	}
	return ErrServerError
}

// transportError 区分超时与不可达
func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnableToConnect, err)
}
