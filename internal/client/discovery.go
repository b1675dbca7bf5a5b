package client

import (
	"context"
	"fmt"
	"time"

	"github.com/nodegate/backend/internal/infrastructure/listener"
	"github.com/nodegate/backend/internal/infrastructure/p2p"
)

// ConnectorFinder 在局域网中查找连接器
type ConnectorFinder interface {
	DiscoverConnectors(ctx context.Context, timeout time.Duration) ([]p2p.DiscoveredConnector, error)
}

// Discover 通过 mDNS 找到节点的连接器并创建客户端
// nodeID 为空时取第一个发现的节点，同一节点优先 https
func Discover(ctx context.Context, finder ConnectorFinder, timeout time.Duration, nodeID, agentID, passphrase string, opts ...Option) (*Client, error) {
	found, err := finder.DiscoverConnectors(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: discovery failed: %v", ErrUnableToConnect, err)
	}

	target, ok := pickConnector(found, nodeID)
	if !ok {
		if nodeID == "" {
			return nil, fmt.Errorf("%w: no connector discovered", ErrUnableToConnect)
		}
		return nil, fmt.Errorf("%w: no connector discovered for node %s", ErrUnableToConnect, nodeID)
	}
	return New(target.URL(), agentID, passphrase, opts...), nil
}

func pickConnector(found []p2p.DiscoveredConnector, nodeID string) (p2p.DiscoveredConnector, bool) {
	var picked p2p.DiscoveredConnector
	ok := false
	for _, c := range found {
		if nodeID != "" && c.NodeID != nodeID {
			continue
		}
		if nodeID == "" && ok && c.NodeID != picked.NodeID {
			continue
		}
		if !ok || (c.Protocol == string(listener.HTTPS) && picked.Protocol != string(listener.HTTPS)) {
			picked = c
			ok = true
		}
	}
	return picked, ok
}
