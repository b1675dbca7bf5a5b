package node

import (
	"fmt"

	"github.com/google/wire"

	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/domain/events"
	"github.com/nodegate/backend/internal/infrastructure/config"
)

// ProviderSet 节点基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideLocalNode,
	wire.Bind(new(connector.Node), new(*LocalNode)),
)

// ProvideLocalNode 按配置创建本地节点，注册配置的 agent 与信封服务
func ProvideLocalNode(cfg *config.NodeConfig, bus events.EventBus) (*LocalNode, error) {
	n := NewLocalNode(cfg.ID, bus)
	for _, a := range cfg.Agents {
		if err := n.StoreAgent(a.ID, a.Name, a.Passphrase); err != nil {
			return nil, fmt.Errorf("failed to store agent %s: %w", a.ID, err)
		}
	}
	n.RegisterService(NewEnvelopeService())
	return n, nil
}
