// Package events 定义连接器事件类型和事件总线接口
// 事件只追加、发出后不可修改
package events

import "time"

// EventType 事件类型标识
type EventType string

// 连接器事件类型
const (
	// ConnectorMessage 连接器生命周期消息（监听器启动、停止等）
	ConnectorMessage EventType = "connector.message"
	// SessionStart 会话建立
	SessionStart EventType = "connector.session.start"
	// SessionEnd 会话结束（断开或超时）
	SessionEnd EventType = "connector.session.end"
	// Request 收到请求
	Request EventType = "connector.request"
	// Error 连接器错误
	Error EventType = "connector.error"
)

// AllConnectorTypes 所有连接器事件类型
var AllConnectorTypes = []EventType{ConnectorMessage, SessionStart, SessionEnd, Request, Error}

// Event 领域事件接口
type Event interface {
	// Type 返回事件类型
	Type() EventType
	// Timestamp 返回事件发生时间
	Timestamp() time.Time
}
