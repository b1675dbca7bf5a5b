package log

import (
	"context"
	"log/slog"
)

type contextKey string

// 上下文键定义
const (
	// RequestContextID HTTP 请求 ID
	RequestContextID contextKey = "request_id"

	// SessionContextID 会话 ID
	SessionContextID contextKey = "session_id"

	// AgentContextID 调用方 agent ID
	AgentContextID contextKey = "agent_id"

	// ListenerContextID 接收请求的监听器（http/https）
	ListenerContextID contextKey = "listener"
)

// WithRequestID 在上下文中添加请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestContextID, requestID)
}

// WithSessionID 在上下文中添加会话 ID
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionContextID, sessionID)
}

// WithAgentID 在上下文中添加 agent ID
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, AgentContextID, agentID)
}

// WithListener 在上下文中添加监听器协议
func WithListener(ctx context.Context, protocol string) context.Context {
	return context.WithValue(ctx, ListenerContextID, protocol)
}

// LogCtxFromContext 从上下文中提取日志字段
func LogCtxFromContext(ctx context.Context) []any {
	var attrs []any
	for _, key := range []contextKey{RequestContextID, SessionContextID, AgentContextID, ListenerContextID} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}
