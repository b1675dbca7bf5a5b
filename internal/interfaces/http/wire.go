package http

import (
	"github.com/google/wire"
)

// ProviderSet HTTP 接口层 ProviderSet
var ProviderSet = wire.NewSet(
	NewRouterBuilder,
	NewHandlerBuilder,
)
