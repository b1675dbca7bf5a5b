package interfaces

import (
	"github.com/google/wire"
	"github.com/nodegate/backend/internal/interfaces/http"
)

// ProviderSet Interfaces 层总 ProviderSet
// MCP 服务器随每次连接器运行创建，不经由 wire
var ProviderSet = wire.NewSet(
	http.ProviderSet,
)
