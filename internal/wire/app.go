package wire

import (
	"context"
	"log/slog"

	appconnector "github.com/nodegate/backend/internal/application/connector"
	"github.com/nodegate/backend/internal/domain/events"
	applog "github.com/nodegate/backend/internal/infrastructure/log"
	"github.com/nodegate/backend/internal/infrastructure/node"
	"github.com/nodegate/backend/internal/infrastructure/websocket"
)

// Version 对外广播的版本号
const Version = "0.1.0"

// App 应用主结构，组合节点、连接器与观察者通道
type App struct {
	connector *appconnector.HTTPConnector
	node      *node.LocalNode
	wsHub     *websocket.Hub
	eventBus  events.EventBus
	logger    *slog.Logger

	unsubscribe func()
}

// NewApp 创建应用实例
func NewApp(
	connector *appconnector.HTTPConnector,
	localNode *node.LocalNode,
	wsHub *websocket.Hub,
	eventBus events.EventBus,
) *App {
	return &App{
		connector: connector,
		node:      localNode,
		wsHub:     wsHub,
		eventBus:  eventBus,
		logger:    applog.NewModuleLogger("app", "main"),
	}
}

// Connector 连接器
func (a *App) Connector() *appconnector.HTTPConnector {
	return a.connector
}

// Node 本地节点
func (a *App) Node() *node.LocalNode {
	return a.node
}

// Start 启动观察者通道并把连接器绑定到节点
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("Starting nodegate application", "node_id", a.node.NodeID(), "version", Version)

	// 启动 WebSocket Hub，订阅节点观察者事件
	a.wsHub.Start()
	a.unsubscribe = a.eventBus.SubscribeMultiple(events.AllConnectorTypes, a.wsHub)

	if err := a.connector.Start(ctx, a.node); err != nil {
		a.logger.Error("Failed to start connector", "error", err)
		a.release()
		return err
	}

	a.logger.Info("nodegate application started successfully",
		"listeners", len(a.connector.Addrs()),
		"agents", len(a.node.Agents()),
	)
	return nil
}

// Stop 优雅停止连接器，再关闭观察者通道
func (a *App) Stop(ctx context.Context) error {
	a.logger.Info("Stopping nodegate application")

	err := a.connector.Stop(ctx)
	if err != nil {
		a.logger.Error("Failed to stop connector", "error", err)
	}
	a.release()

	a.logger.Info("nodegate application stopped")
	return err
}

// Interrupt 立即终止连接器，不等待进行中的请求
func (a *App) Interrupt() {
	a.connector.Interrupt()
}

func (a *App) release() {
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	a.eventBus.Close()
	a.wsHub.Stop()
}
