//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"
	"github.com/nodegate/backend/internal/application"
	appconnector "github.com/nodegate/backend/internal/application/connector"
	"github.com/nodegate/backend/internal/infrastructure"
	"github.com/nodegate/backend/internal/infrastructure/p2p"
	"github.com/nodegate/backend/internal/interfaces"
)

// InitializeAll 初始化节点、连接器与观察者通道
func InitializeAll() (*App, func(), error) {
	wire.Build(
		// 按层组合 ProviderSet
		infrastructure.ProviderSet, // 基础设施层
		application.ProviderSet,    // 应用层
		interfaces.ProviderSet,     // 接口层
		// 接口绑定：appconnector.Announcer -> p2p.ListenerAnnouncer
		wire.Bind(
			new(appconnector.Announcer),
			new(*p2p.ListenerAnnouncer),
		),
		wire.Value(p2p.AnnouncerVersion(Version)),
		NewApp,
	)
	return nil, nil, nil
}
