package infrastructure

import (
	"github.com/google/wire"
	"github.com/nodegate/backend/internal/infrastructure/config"
	"github.com/nodegate/backend/internal/infrastructure/node"
	"github.com/nodegate/backend/internal/infrastructure/p2p"
	"github.com/nodegate/backend/internal/infrastructure/storage"
	"github.com/nodegate/backend/internal/infrastructure/watcher"
	"github.com/nodegate/backend/internal/infrastructure/websocket"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	watcher.ProviderSet,
	websocket.ProviderSet,
	storage.ProviderSet,
	node.ProviderSet,
	p2p.ProviderSet,
)
