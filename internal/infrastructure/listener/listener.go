// Package listener 管理连接器的明文与加密 HTTP 监听器
package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nodegate/backend/internal/infrastructure/log"
)

// Protocol 监听协议
type Protocol string

const (
	HTTP  Protocol = "http"
	HTTPS Protocol = "https"
)

// HandlerFactory 为监听器构建请求处理器
// 每个监听器调用一次，返回的处理器只属于该监听器
type HandlerFactory func(protocol Protocol) (http.Handler, error)

// Listener 单个监听器
type Listener struct {
	protocol Protocol
	port     int

	mu      sync.Mutex
	server  *http.Server
	addr    net.Addr
	handler http.Handler
	aborted bool

	done     chan struct{}
	serveErr error

	shutdownOnce sync.Once
	shutdownCh   chan error

	logger *slog.Logger
}

func newListener(protocol Protocol, port int) *Listener {
	return &Listener{
		protocol:   protocol,
		port:       port,
		done:       make(chan struct{}),
		shutdownCh: make(chan error, 1),
		logger:     log.NewModuleLogger("listener", string(protocol)),
	}
}

// Protocol 监听协议
func (l *Listener) Protocol() Protocol {
	return l.protocol
}

// Addr 实际绑定地址，未绑定时为 nil
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Port 实际绑定端口；端口配置为 0 时返回系统分配的端口
func (l *Listener) Port() int {
	if tcp, ok := l.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return l.port
}

// Handler 已挂载的请求处理器
func (l *Listener) Handler() http.Handler {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler
}

// serve 绑定端口、构建处理器，就绪后通过 ready 通知并开始服务
func (l *Listener) serve(host string, tlsConfig *tls.Config, timeout time.Duration, factory HandlerFactory, ready chan<- error) {
	defer close(l.done)

	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(l.port)))
	if err != nil {
		ready <- fmt.Errorf("cannot bind port %d: %w", l.port, err)
		return
	}

	handler, err := factory(l.protocol)
	if err != nil {
		ln.Close()
		ready <- fmt.Errorf("cannot build handler: %w", err)
		return
	}

	// 超时必须在开始接受连接之前设置
	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       timeout,
		ErrorLog:          slog.NewLogLogger(l.logger.Handler(), slog.LevelWarn),
	}

	if tlsConfig != nil {
		srv.TLSConfig = tlsConfig
		ln = tls.NewListener(ln, tlsConfig)
	}

	l.mu.Lock()
	if l.aborted {
		l.mu.Unlock()
		ln.Close()
		ready <- context.Canceled
		return
	}
	l.server = srv
	l.addr = ln.Addr()
	l.handler = handler
	l.mu.Unlock()

	ready <- nil

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.logger.Error("Listener stopped unexpectedly", "port", l.Port(), "error", err)
		l.serveErr = err
	}
}

// abort 放弃尚未完成握手的监听器
func (l *Listener) abort() {
	l.mu.Lock()
	l.aborted = true
	srv := l.server
	l.mu.Unlock()

	if srv != nil {
		srv.Close()
	}
}

// beginShutdown 在后台发起优雅关闭，不阻塞
func (l *Listener) beginShutdown(timeout time.Duration) {
	l.shutdownOnce.Do(func() {
		l.mu.Lock()
		srv := l.server
		l.mu.Unlock()

		if srv == nil {
			l.shutdownCh <- nil
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			l.shutdownCh <- srv.Shutdown(ctx)
		}()
	})
}

// close 硬关闭，不等待正在处理的请求
func (l *Listener) close() error {
	l.mu.Lock()
	srv := l.server
	l.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Close()
}

// join 等待优雅关闭完成与服务 goroutine 退出
func (l *Listener) join(ctx context.Context) error {
	select {
	case err := <-l.shutdownCh:
		if err != nil {
			// 排空超时，强制关闭剩余连接
			l.close()
			<-l.done
			return fmt.Errorf("graceful shutdown of %s listener failed: %w", l.protocol, err)
		}
	case <-ctx.Done():
		l.close()
		<-l.done
		return fmt.Errorf("join of %s listener interrupted: %w", l.protocol, ctx.Err())
	}

	select {
	case <-l.done:
	case <-ctx.Done():
		l.close()
		<-l.done
		return fmt.Errorf("join of %s listener interrupted: %w", l.protocol, ctx.Err())
	}
	return l.serveErr
}

// wait 等待服务 goroutine 退出
func (l *Listener) wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
