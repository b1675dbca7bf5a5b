package watcher

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodegate/backend/internal/domain/events"
)

func newEvent(kind events.EventType, msg string) *events.ConnectorEvent {
	return &events.ConnectorEvent{Kind: kind, NodeID: "node-1", Message: msg, Time: time.Now()}
}

func TestEventBus_DeliversInOrder(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	var got []string
	bus.SubscribeMultiple(events.AllConnectorTypes, events.HandlerFunc(func(e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(*events.ConnectorEvent).Message)
		return nil
	}))

	for _, msg := range []string{"a", "b", "c", "d"} {
		bus.Publish(newEvent(events.ConnectorMessage, msg))
	}
	bus.Publish(newEvent(events.Error, "e"))

	// Close 等待已入队的事件处理完成
	bus.Close()

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestEventBus_FiltersByType(t *testing.T) {
	bus := NewEventBus()

	var count atomic.Int32
	bus.Subscribe(events.SessionStart, events.HandlerFunc(func(events.Event) error {
		count.Add(1)
		return nil
	}))

	bus.Publish(newEvent(events.SessionStart, "open"))
	bus.Publish(newEvent(events.SessionEnd, "close"))
	bus.Close()

	assert.Equal(t, int32(1), count.Load())
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var count atomic.Int32
	unsub := bus.Subscribe(events.Request, events.HandlerFunc(func(events.Event) error {
		count.Add(1)
		return nil
	}))

	bus.Publish(newEvent(events.Request, "/a/b"))
	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 10*time.Millisecond)

	unsub()
	unsub()
	bus.Publish(newEvent(events.Request, "/a/b"))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), count.Load())
}

func TestEventBus_HandlerErrorsAndPanicsAreContained(t *testing.T) {
	bus := NewEventBus()

	var healthy atomic.Int32
	bus.Subscribe(events.Error, events.HandlerFunc(func(events.Event) error {
		panic("boom")
	}))
	bus.Subscribe(events.Error, events.HandlerFunc(func(events.Event) error {
		return errors.New("failed")
	}))
	bus.Subscribe(events.Error, events.HandlerFunc(func(events.Event) error {
		healthy.Add(1)
		return nil
	}))

	bus.Publish(newEvent(events.Error, "x"))
	bus.Publish(newEvent(events.Error, "y"))
	bus.Close()

	assert.Equal(t, int32(2), healthy.Load())
}

func TestEventBus_PublishAfterClose(t *testing.T) {
	bus := NewEventBus()
	bus.Close()
	bus.Close()

	assert.NotPanics(t, func() {
		bus.Publish(newEvent(events.ConnectorMessage, "late"))
		bus.Subscribe(events.ConnectorMessage, events.HandlerFunc(func(events.Event) error { return nil }))()
	})
}
