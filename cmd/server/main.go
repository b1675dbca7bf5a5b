// @title nodegate Connector API
// @version 1.0
// @description 节点 HTTP/HTTPS 连接器：会话与服务调用
// @BasePath /
// @schemes http https
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	applog "github.com/nodegate/backend/internal/infrastructure/log"
	"github.com/nodegate/backend/internal/infrastructure/singleton"
	"github.com/nodegate/backend/internal/wire"
)

// stopGrace 第一次信号后等待优雅停止的上限，超时或再次收到信号即中断
const stopGrace = 30 * time.Second

func main() {
	// 初始化日志系统
	applog.Init(nil)
	logger := applog.GetLogger()

	// Wire 自动生成的初始化函数
	app, cleanup, err := wire.InitializeAll()
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// 同一端口上已有健康节点时直接退出
	if cfg := app.Connector().Config(); cfg.StartHTTP {
		inst, err := singleton.CheckPort("", cfg.HTTPPort)
		if err != nil {
			logger.Error("Connector port unavailable", "port", cfg.HTTPPort, "error", err)
			if errors.Is(err, singleton.ErrPortBusy) {
				cleanup()
				os.Exit(1)
			}
		}
		if inst != nil {
			logger.Info("Node already running, exiting", "port", cfg.HTTPPort, "node_id", inst.NodeID)
			cleanup()
			os.Exit(0)
		}
	}

	if err := app.Start(context.Background()); err != nil {
		logger.Error("Failed to start application", "error", err)
		cleanup()
		os.Exit(1)
	}

	// 优雅关闭
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down application...")
	ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.Stop(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Error during application shutdown", "error", err)
		}
	case <-sigChan:
		logger.Warn("Second signal received, interrupting")
		app.Interrupt()
		<-done
	}
	logger.Info("Application stopped")
}
