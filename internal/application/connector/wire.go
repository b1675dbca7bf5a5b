package connector

import (
	"github.com/google/wire"

	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/infrastructure/config"
)

// ProviderSet 连接器应用层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideHTTPConnector,
)

// ProvideHTTPConnector 按配置创建连接器，挂上持久会话仓储与 mDNS 广播
func ProvideHTTPConnector(
	cfg *config.ConnectorConfig,
	builder HandlerBuilder,
	repo connector.SessionRepository,
	announcer Announcer,
) *HTTPConnector {
	return NewHTTPConnector(*cfg, builder,
		WithSessionRepository(repo),
		WithAnnouncer(announcer),
	)
}
