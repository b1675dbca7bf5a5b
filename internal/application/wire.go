package application

import (
	"github.com/google/wire"
	"github.com/nodegate/backend/internal/application/connector"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	connector.ProviderSet,
)
