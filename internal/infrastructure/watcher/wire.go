package watcher

import (
	"github.com/google/wire"

	"github.com/nodegate/backend/internal/domain/events"
)

// ProvideEventBus 提供事件总线实例（节点观察者通道）
func ProvideEventBus() events.EventBus {
	return NewEventBus()
}

// ProviderSet watcher ProviderSet
var ProviderSet = wire.NewSet(
	ProvideEventBus,
)
