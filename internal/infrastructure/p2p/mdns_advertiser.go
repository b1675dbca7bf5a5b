package p2p

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/nodegate/backend/internal/domain/p2p"
	"github.com/nodegate/backend/internal/infrastructure/log"
)

// MDNSAdvertiser mDNS 服务广播器，一个实例广播一个服务
type MDNSAdvertiser struct {
	mu      sync.RWMutex
	server  *zeroconf.Server
	info    *p2p.ServiceInfo
	running bool
	logger  *slog.Logger
	netMgr  *NetworkManager
}

// NewMDNSAdvertiser 创建 mDNS 广播器
func NewMDNSAdvertiser(netMgr *NetworkManager) *MDNSAdvertiser {
	return &MDNSAdvertiser{
		logger: log.NewModuleLogger("p2p", "mdns_advertiser"),
		netMgr: netMgr,
	}
}

// Start 开始广播服务
// 有可用局域网地址时按地址代理注册，否则交给 zeroconf 自行选择接口
func (a *MDNSAdvertiser) Start(info p2p.ServiceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("advertiser is already running")
	}

	txtRecords := txtList(info.TxtRecords)

	ips, ifaces, err := a.netMgr.AdvertiseTargets()
	if err != nil {
		a.logger.Debug("No LAN address to pin, letting zeroconf pick interfaces", "error", err)
	}

	serviceType := info.ServiceType
	if serviceType == "" {
		serviceType = p2p.ServiceType
	}
	domain := info.Domain
	if domain == "" {
		domain = p2p.Domain
	}

	a.logger.Info("starting mDNS advertiser",
		"instance", info.InstanceName,
		"port", info.Port,
		"ips", ips,
		"txt_records", txtRecords,
	)

	var server *zeroconf.Server
	if len(ips) > 0 {
		host := info.HostName
		if host == "" {
			host = info.InstanceName
		}
		server, err = zeroconf.RegisterProxy(info.InstanceName, serviceType, domain, info.Port, host, ips, txtRecords, ifaces)
	} else {
		server, err = zeroconf.Register(info.InstanceName, serviceType, domain, info.Port, txtRecords, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	info.ServiceType = serviceType
	info.Domain = domain
	info.IPs = ips
	a.server = server
	a.info = &info
	a.running = true

	a.logger.Info("mDNS advertiser started",
		"node_id", info.NodeID(),
		"protocol", info.Protocol(),
	)
	return nil
}

// Stop 停止广播
func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	a.running = false
	a.info = nil

	a.logger.Info("mDNS advertiser stopped")
	return nil
}

// IsRunning 是否正在广播
func (a *MDNSAdvertiser) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// GetInfo 获取当前广播的服务信息
func (a *MDNSAdvertiser) GetInfo() *p2p.ServiceInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.info == nil {
		return nil
	}
	infoCopy := *a.info
	return &infoCopy
}

// txtList 按键排序生成 TXT 记录
func txtList(records map[string]string) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, records[k]))
	}
	return out
}

// BuildServiceInfo 构建监听器的广播信息
func BuildServiceInfo(nodeID string, endpoint p2p.Endpoint, version string) p2p.ServiceInfo {
	return p2p.ServiceInfo{
		InstanceName: fmt.Sprintf("nodegate-%s-%s", nodeID, endpoint.Protocol),
		ServiceType:  p2p.ServiceType,
		Domain:       p2p.Domain,
		Port:         endpoint.Port,
		TxtRecords: map[string]string{
			p2p.TxtNodeID:   nodeID,
			p2p.TxtProtocol: endpoint.Protocol,
			p2p.TxtVersion:  version,
			"port":          strconv.Itoa(endpoint.Port),
		},
	}
}

// ListenerAnnouncer 为每个运行中的监听器维护一个广播器
type ListenerAnnouncer struct {
	mu          sync.Mutex
	netMgr      *NetworkManager
	version     string
	advertisers []*MDNSAdvertiser
	logger      *slog.Logger
}

// NewListenerAnnouncer 创建监听器广播管理
func NewListenerAnnouncer(netMgr *NetworkManager, version string) *ListenerAnnouncer {
	return &ListenerAnnouncer{
		netMgr:  netMgr,
		version: version,
		logger:  log.NewModuleLogger("p2p", "announcer"),
	}
}

// Announce 广播全部端点，任一失败时撤回已广播的端点
func (a *ListenerAnnouncer) Announce(nodeID string, endpoints []p2p.Endpoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, ep := range endpoints {
		adv := NewMDNSAdvertiser(a.netMgr)
		if err := adv.Start(BuildServiceInfo(nodeID, ep, a.version)); err != nil {
			a.withdrawLocked()
			return fmt.Errorf("failed to announce %s listener: %w", ep.Protocol, err)
		}
		a.advertisers = append(a.advertisers, adv)
	}
	return nil
}

// Withdraw 停止所有广播，可重复调用
func (a *ListenerAnnouncer) Withdraw() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.withdrawLocked()
}

func (a *ListenerAnnouncer) withdrawLocked() {
	for _, adv := range a.advertisers {
		if err := adv.Stop(); err != nil {
			a.logger.Warn("Failed to stop advertiser", "error", err)
		}
	}
	a.advertisers = nil
}

// Announced 正在广播的服务
func (a *ListenerAnnouncer) Announced() []p2p.ServiceInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []p2p.ServiceInfo
	for _, adv := range a.advertisers {
		if info := adv.GetInfo(); info != nil {
			out = append(out, *info)
		}
	}
	return out
}
