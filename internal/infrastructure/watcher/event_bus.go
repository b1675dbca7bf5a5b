// Package watcher 提供事件分发和文件监听功能
package watcher

import (
	"log/slog"
	"sync"

	"github.com/nodegate/backend/internal/domain/events"
	"github.com/nodegate/backend/internal/infrastructure/log"
)

// subscriberQueueSize 每个订阅者的缓冲事件数，满了之后丢弃
const subscriberQueueSize = 256

// subscription 单个订阅者，事件按发布顺序投递
type subscription struct {
	handler events.Handler
	queue   chan events.Event
	once    sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.queue) })
}

// eventBusImpl EventBus 的实现
type eventBusImpl struct {
	handlers map[events.EventType][]*subscription
	mu       sync.RWMutex
	logger   *slog.Logger
	closed   bool
	wg       sync.WaitGroup
}

// NewEventBus 创建新的事件总线实例
func NewEventBus() events.EventBus {
	return &eventBusImpl{
		handlers: make(map[events.EventType][]*subscription),
		logger:   log.NewModuleLogger("watcher", "event_bus"),
	}
}

// Subscribe 订阅特定类型的事件
func (b *eventBusImpl) Subscribe(eventType events.EventType, handler events.Handler) func() {
	return b.SubscribeMultiple([]events.EventType{eventType}, handler)
}

// SubscribeMultiple 订阅多个类型的事件，同一订阅者内保持顺序
func (b *eventBusImpl) SubscribeMultiple(eventTypes []events.EventType, handler events.Handler) func() {
	sub := &subscription{
		handler: handler,
		queue:   make(chan events.Event, subscriberQueueSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	for _, eventType := range eventTypes {
		b.handlers[eventType] = append(b.handlers[eventType], sub)
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go b.deliver(sub)

	return func() {
		b.unsubscribe(eventTypes, sub)
	}
}

// unsubscribe 取消订阅
func (b *eventBusImpl) unsubscribe(eventTypes []events.EventType, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, eventType := range eventTypes {
		subs := b.handlers[eventType]
		for i, s := range subs {
			if s == sub {
				b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
	sub.close()
}

// Publish 发布事件，不阻塞发布方
func (b *eventBusImpl) Publish(event events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.handlers[event.Type()] {
		select {
		case sub.queue <- event:
		default:
			b.logger.Warn("Subscriber queue full, dropping event",
				"type", event.Type(),
			)
		}
	}
}

// deliver 顺序投递到单个订阅者
func (b *eventBusImpl) deliver(sub *subscription) {
	defer b.wg.Done()
	for event := range sub.queue {
		b.dispatchToHandler(event, sub.handler)
	}
}

// dispatchToHandler 分发事件到单个处理器
func (b *eventBusImpl) dispatchToHandler(event events.Event, handler events.Handler) {
	// 捕获 panic，防止单个处理器崩溃影响其他处理器
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Handler panicked",
				"type", event.Type(),
				"panic", r,
			)
		}
	}()

	if err := handler.HandleEvent(event); err != nil {
		b.logger.Error("Handler returned error",
			"type", event.Type(),
			"error", err,
		)
	}
}

// Close 关闭事件总线，等待已入队事件处理完成
func (b *eventBusImpl) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.handlers {
		for _, sub := range subs {
			sub.close()
		}
	}
	b.handlers = make(map[events.EventType][]*subscription)
	b.mu.Unlock()

	b.wg.Wait()

	b.logger.Info("Event bus closed")
}
