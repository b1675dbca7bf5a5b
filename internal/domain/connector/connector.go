// Package connector 定义连接器与 p2p 节点之间的边界
package connector

import (
	"context"

	"github.com/nodegate/backend/internal/domain/events"
)

// Connector 连接器能力接口
// 节点通过它启动和停止任意协议的连接器
type Connector interface {
	// Start 绑定节点并启动监听
	Start(ctx context.Context, node Node) error
	// Stop 停止监听并等待所有监听器退出，可重复调用
	Stop(ctx context.Context) error
	// Interrupt 硬中断，不等待正在处理的请求
	Interrupt()
}

// Node p2p 节点在连接器侧可见的能力
type Node interface {
	// NodeID 节点标识
	NodeID() string
	// ObserverNotice 将事件转发给节点观察者
	ObserverNotice(event *events.ConnectorEvent)
	// UnlockAgent 用凭据解锁 agent，凭据错误返回 ErrAuthenticationFailed
	UnlockAgent(ctx context.Context, agentID, passphrase string) (*Agent, error)
	// GetAgent 查询已知 agent，未知返回 ErrAgentNotKnown
	GetAgent(ctx context.Context, agentID string) (*Agent, error)
	// ResolveService 解析服务对应的服务 agent，未知返回 ErrNotFound
	ResolveService(ctx context.Context, service string) (*Agent, error)
	// Invoke 调用服务方法
	Invoke(ctx context.Context, inv *Invocation) (any, error)
}

// Agent 节点已知的身份（用户或服务）
type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	IsService bool   `json:"is_service,omitempty"`
}

// Invocation 一次远程调用
type Invocation struct {
	// Caller 已认证的调用方
	Caller *Agent
	// Service 服务标识，例如 com.example.MyService
	Service string
	// Method 方法名
	Method string
	// Params 已解码的参数
	Params []any
	// PreferLocal 优先使用本地服务实例
	PreferLocal bool
}
