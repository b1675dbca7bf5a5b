// Package p2p 定义连接器在局域网中的广播与发现模型
package p2p

import (
	"context"
	"errors"
	"time"
)

// ServiceType mDNS 服务类型
const ServiceType = "_nodegate._tcp"

// Domain mDNS 域
const Domain = "local."

// TXT 记录键
const (
	TxtNodeID   = "node_id"
	TxtProtocol = "protocol"
	TxtVersion  = "version"
)

// ErrNoValidInterface 没有可用于广播的网络接口
var ErrNoValidInterface = errors.New("no valid network interface found")

// ServiceInfo mDNS 服务信息
type ServiceInfo struct {
	InstanceName string            // 服务实例名
	ServiceType  string            // 服务类型
	Domain       string            // 域（默认 "local."）
	HostName     string            // 主机名
	Port         int               // 端口
	IPs          []string          // IP 地址列表
	TxtRecords   map[string]string // TXT 记录
}

// NodeID 从 TXT 记录获取节点 ID
func (s *ServiceInfo) NodeID() string {
	return s.TxtRecords[TxtNodeID]
}

// Protocol 从 TXT 记录获取监听协议
func (s *ServiceInfo) Protocol() string {
	return s.TxtRecords[TxtProtocol]
}

// Version 从 TXT 记录获取版本
func (s *ServiceInfo) Version() string {
	return s.TxtRecords[TxtVersion]
}

// NetworkInterface 网络接口信息
type NetworkInterface struct {
	Name       string   `json:"name"`
	Addresses  []string `json:"addresses"`
	IsUp       bool     `json:"is_up"`
	IsLoopback bool     `json:"is_loopback"`
	IsVirtual  bool     `json:"is_virtual"`
}

// Discovery 服务发现接口
type Discovery interface {
	// Discover 在超时内浏览局域网中的连接器
	Discover(ctx context.Context, timeout time.Duration) ([]ServiceInfo, error)
}

// Advertiser 服务广播接口
type Advertiser interface {
	// Start 开始广播服务
	Start(info ServiceInfo) error
	// Stop 停止广播
	Stop() error
	// IsRunning 是否正在广播
	IsRunning() bool
}

// Endpoint 一个已启动的监听器端点
type Endpoint struct {
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
}
