package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/infrastructure/config"
	"github.com/nodegate/backend/internal/infrastructure/log"
)

// State 监听器集合状态
type State int

const (
	Unstarted State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Settings 监听器集合设置
type Settings struct {
	// Host 绑定地址，空表示所有网卡
	Host string

	HTTPPort   int
	HTTPSPort  int
	StartHTTP  bool
	StartHTTPS bool

	Keystore         string
	KeystorePassword string

	SocketTimeout   time.Duration
	AttachTimeout   time.Duration
	ShutdownTimeout time.Duration
}

// SettingsFromConfig 从连接器配置生成设置
func SettingsFromConfig(cfg config.ConnectorConfig) Settings {
	return Settings{
		HTTPPort:         cfg.HTTPPort,
		HTTPSPort:        cfg.HTTPSPort,
		StartHTTP:        cfg.StartHTTP,
		StartHTTPS:       cfg.StartHTTPS,
		Keystore:         cfg.SSLKeystore,
		KeystorePassword: cfg.SSLKeyPasswd,
		SocketTimeout:    cfg.SocketTimeout(),
		AttachTimeout:    cfg.HandlerAttachTimeout(),
		ShutdownTimeout:  cfg.ShutdownTimeout(),
	}
}

// StopResult 单个监听器的停止结果
type StopResult struct {
	Protocol Protocol
	Port     int
	Err      error
}

// Set 明文与加密监听器集合
// opMu 串行化 Start/Stop；mu 保护状态，Interrupt 只需要 mu
type Set struct {
	settings Settings
	factory  HandlerFactory

	opMu sync.Mutex

	mu        sync.Mutex
	state     State
	listeners []*Listener

	logger *slog.Logger
}

// NewSet 创建监听器集合
func NewSet(settings Settings, factory HandlerFactory) *Set {
	if settings.AttachTimeout <= 0 {
		settings.AttachTimeout = 10 * time.Second
	}
	if settings.ShutdownTimeout <= 0 {
		settings.ShutdownTimeout = 5 * time.Second
	}
	return &Set{
		settings: settings,
		factory:  factory,
		logger:   log.NewModuleLogger("listener", "set"),
	}
}

// State 当前状态
func (s *Set) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start 依次启动 http 与 https 监听器
// 任一监听器失败时已启动的监听器被硬关闭，返回 StartError
func (s *Set) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != Unstarted {
		s.mu.Unlock()
		return connector.ErrAlreadyStarted
	}
	if !s.settings.StartHTTP && !s.settings.StartHTTPS {
		s.mu.Unlock()
		return connector.ErrNoListenerEnabled
	}
	s.state = Starting
	s.mu.Unlock()

	var started []*Listener
	fail := func(stage Protocol, err error) error {
		for _, l := range started {
			l.abort()
			<-l.done
		}
		s.mu.Lock()
		s.state = Unstarted
		s.mu.Unlock()
		return &connector.StartError{Stage: string(stage), Err: err}
	}

	if s.settings.StartHTTP {
		l, err := s.startListener(ctx, HTTP, s.settings.HTTPPort, nil)
		if err != nil {
			return fail(HTTP, err)
		}
		started = append(started, l)
	}

	if s.settings.StartHTTPS {
		tlsConfig, err := LoadTLSConfig(s.settings.Keystore, s.settings.KeystorePassword)
		if err != nil {
			return fail(HTTPS, err)
		}
		l, err := s.startListener(ctx, HTTPS, s.settings.HTTPSPort, tlsConfig)
		if err != nil {
			return fail(HTTPS, err)
		}
		started = append(started, l)
	}

	s.mu.Lock()
	s.listeners = started
	s.state = Running
	s.mu.Unlock()
	return nil
}

// startListener 启动监听器并等待处理器挂载完成
func (s *Set) startListener(ctx context.Context, protocol Protocol, port int, tlsConfig *tls.Config) (*Listener, error) {
	l := newListener(protocol, port)
	ready := make(chan error, 1)

	go l.serve(s.settings.Host, tlsConfig, s.settings.SocketTimeout, s.factory, ready)

	timer := time.NewTimer(s.settings.AttachTimeout)
	defer timer.Stop()

	select {
	case err := <-ready:
		if err != nil {
			return nil, err
		}
		s.logger.Info("Listener ready", "protocol", protocol, "addr", l.Addr())
		return l, nil
	case <-timer.C:
		l.abort()
		return nil, connector.ErrHandlerAttachTimeout
	case <-ctx.Done():
		l.abort()
		return nil, ctx.Err()
	}
}

// Stop 先向所有监听器发出关闭信号，再并发等待退出
// 单个监听器等待失败不影响其他监听器；未运行时返回 nil
func (s *Set) Stop(ctx context.Context) []StopResult {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return nil
	}
	s.state = Stopping
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l.beginShutdown(s.settings.ShutdownTimeout)
	}

	results := make([]StopResult, len(listeners))
	p := pool.New().WithMaxGoroutines(len(listeners))
	for i, l := range listeners {
		p.Go(func() {
			err := l.join(ctx)
			if err != nil {
				s.logger.Error("Failed to join listener", "protocol", l.protocol, "error", err)
			}
			results[i] = StopResult{Protocol: l.protocol, Port: l.Port(), Err: err}
		})
	}
	p.Wait()

	s.mu.Lock()
	s.listeners = nil
	s.state = Unstarted
	s.mu.Unlock()

	return results
}

// Interrupt 硬关闭所有监听器，不等待请求排空
// 只在 Running 与 Stopping 状态下生效
func (s *Set) Interrupt() {
	s.mu.Lock()
	if s.state != Running && s.state != Stopping {
		s.mu.Unlock()
		return
	}
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		if err := l.close(); err != nil {
			s.logger.Warn("Failed to close listener", "protocol", l.protocol, "error", err)
		}
	}
}

// Join 等待所有监听器的服务 goroutine 退出
func (s *Set) Join(ctx context.Context) error {
	var errs []error
	for _, l := range s.Listeners() {
		if err := l.wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.protocol, err))
		}
	}
	return errors.Join(errs...)
}

// Running 正在运行的协议
func (s *Set) Running() []Protocol {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running {
		return nil
	}
	out := make([]Protocol, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l.protocol)
	}
	return out
}

// Listeners 当前监听器快照
func (s *Set) Listeners() []*Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Listener(nil), s.listeners...)
}
