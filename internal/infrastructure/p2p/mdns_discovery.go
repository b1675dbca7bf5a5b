package p2p

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/nodegate/backend/internal/domain/p2p"
	"github.com/nodegate/backend/internal/infrastructure/log"
)

// MDNSDiscovery mDNS 服务发现器
type MDNSDiscovery struct {
	logger *slog.Logger
}

// NewMDNSDiscovery 创建 mDNS 发现器
func NewMDNSDiscovery() *MDNSDiscovery {
	return &MDNSDiscovery{
		logger: log.NewModuleLogger("p2p", "mdns_discovery"),
	}
}

// Discover 在超时内浏览连接器服务
func (d *MDNSDiscovery) Discover(ctx context.Context, timeout time.Duration) ([]p2p.ServiceInfo, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 10)
	var (
		mu       sync.Mutex
		services []p2p.ServiceInfo
		wg       sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			if service := d.parseServiceEntry(entry); service != nil {
				mu.Lock()
				services = append(services, *service)
				mu.Unlock()
			}
		}
	}()

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := resolver.Browse(browseCtx, p2p.ServiceType, p2p.Domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse services: %w", err)
	}

	<-browseCtx.Done()

	// 给收集协程一点时间处理最后的条目
	collected := make(chan struct{})
	go func() {
		wg.Wait()
		close(collected)
	}()
	select {
	case <-collected:
	case <-time.After(200 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	out := append([]p2p.ServiceInfo(nil), services...)

	d.logger.Debug("mDNS discovery completed", "count", len(out))
	return out, nil
}

// parseServiceEntry 解析服务条目，没有 IPv4 地址的条目被跳过
func (d *MDNSDiscovery) parseServiceEntry(entry *zeroconf.ServiceEntry) *p2p.ServiceInfo {
	if entry == nil {
		return nil
	}

	var ips []string
	for _, ip := range entry.AddrIPv4 {
		ips = append(ips, ip.String())
	}
	if len(ips) == 0 {
		d.logger.Debug("skipping service without IPv4 address", "instance", entry.Instance)
		return nil
	}

	txtRecords := make(map[string]string)
	for _, txt := range entry.Text {
		if key, value := parseTxtRecord(txt); key != "" {
			txtRecords[key] = value
		}
	}

	return &p2p.ServiceInfo{
		InstanceName: entry.Instance,
		ServiceType:  entry.Service,
		Domain:       entry.Domain,
		HostName:     entry.HostName,
		Port:         entry.Port,
		IPs:          ips,
		TxtRecords:   txtRecords,
	}
}

// parseTxtRecord 解析 TXT 记录（格式：key=value）
func parseTxtRecord(txt string) (string, string) {
	for i := 0; i < len(txt); i++ {
		if txt[i] == '=' {
			return txt[:i], txt[i+1:]
		}
	}
	return txt, ""
}

// DiscoveredConnector 发现的连接器
type DiscoveredConnector struct {
	NodeID   string `json:"node_id"`
	Protocol string `json:"protocol"`
	Endpoint string `json:"endpoint"`
	Version  string `json:"version"`
}

// URL 连接器根地址
func (c DiscoveredConnector) URL() string {
	return fmt.Sprintf("%s://%s", c.Protocol, c.Endpoint)
}

// DiscoverConnectors 发现连接器（便捷方法）
func (d *MDNSDiscovery) DiscoverConnectors(ctx context.Context, timeout time.Duration) ([]DiscoveredConnector, error) {
	services, err := d.Discover(ctx, timeout)
	if err != nil {
		return nil, err
	}
	return connectorsFromServices(services), nil
}

func connectorsFromServices(services []p2p.ServiceInfo) []DiscoveredConnector {
	var out []DiscoveredConnector
	for _, svc := range services {
		if svc.NodeID() == "" || len(svc.IPs) == 0 {
			continue
		}
		protocol := svc.Protocol()
		if protocol == "" {
			protocol = "http"
		}
		out = append(out, DiscoveredConnector{
			NodeID:   svc.NodeID(),
			Protocol: protocol,
			Endpoint: svc.IPs[0] + ":" + strconv.Itoa(svc.Port),
			Version:  svc.Version(),
		})
	}
	return out
}
