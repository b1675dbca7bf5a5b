package events

import "time"

// ConnectorEvent 连接器事件记录
type ConnectorEvent struct {
	// Kind 事件类型
	Kind EventType `json:"kind"`
	// NodeID 发出事件的节点
	NodeID string `json:"node_id"`
	// Subject 相关 agent（服务或用户），可为空
	Subject string `json:"subject,omitempty"`
	// Message 事件消息
	Message string `json:"message"`
	// Time 事件时间
	Time time.Time `json:"time"`
}

// Type 实现 Event 接口
func (e *ConnectorEvent) Type() EventType {
	return e.Kind
}

// Timestamp 实现 Event 接口
func (e *ConnectorEvent) Timestamp() time.Time {
	return e.Time
}
