package connector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/nodegate/backend/internal/application/session"
	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/domain/p2p"
	"github.com/nodegate/backend/internal/infrastructure/config"
	"github.com/nodegate/backend/internal/infrastructure/eventsink"
	"github.com/nodegate/backend/internal/infrastructure/listener"
	"github.com/nodegate/backend/internal/infrastructure/log"
)

// minPort 允许配置的最小端口
const minPort = 80

// Announcer 在局域网中广播运行中的监听器
type Announcer interface {
	Announce(nodeID string, endpoints []p2p.Endpoint) error
	Withdraw()
}

// active 一次运行的状态
type active struct {
	node    connector.Node
	runtime *Runtime
	set     *listener.Set
}

// HTTPConnector 通过 HTTP/HTTPS 暴露节点服务的连接器
type HTTPConnector struct {
	mu        sync.Mutex
	cfg       config.ConnectorConfig
	logStream io.Writer

	builder   HandlerBuilder
	repo      connector.SessionRepository
	announcer Announcer

	// current 单独存放，Interrupt 不需要等待 mu
	current atomic.Pointer[active]

	logger *slog.Logger
}

var _ connector.Connector = (*HTTPConnector)(nil)

// Option 连接器选项
type Option func(*HTTPConnector)

// WithSessionRepository 持久会话写入仓储
func WithSessionRepository(repo connector.SessionRepository) Option {
	return func(c *HTTPConnector) { c.repo = repo }
}

// WithAnnouncer 启用监听器广播
func WithAnnouncer(a Announcer) Option {
	return func(c *HTTPConnector) { c.announcer = a }
}

// NewHTTPConnector 创建连接器
func NewHTTPConnector(cfg config.ConnectorConfig, builder HandlerBuilder, opts ...Option) *HTTPConnector {
	c := &HTTPConnector{
		cfg:     cfg,
		builder: builder,
		logger:  log.NewModuleLogger("connector", "lifecycle"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.EnableFileAccess {
		c.logger.Warn("File access is enabled, files are served from the local file system",
			"directory", cfg.FileDirectory,
		)
	}
	return c
}

// SetPort 设置明文端口，只能在启动前调用
func (c *HTTPConnector) SetPort(port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Load() != nil {
		return connector.ErrPortChangeAfterStart
	}
	if port < minPort {
		return fmt.Errorf("%w: %d", connector.ErrIllegalPort, port)
	}
	c.cfg.HTTPPort = port
	return nil
}

// SetHTTPSPort 设置加密端口，只能在启动前调用
func (c *HTTPConnector) SetHTTPSPort(port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Load() != nil {
		return connector.ErrPortChangeAfterStart
	}
	if port < minPort {
		return fmt.Errorf("%w: %d", connector.ErrIllegalPort, port)
	}
	c.cfg.HTTPSPort = port
	return nil
}

// SetSocketTimeout 设置连接超时，下次启动生效
func (c *HTTPConnector) SetSocketTimeout(timeoutMS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.SocketTimeoutMS = timeoutMS
}

// SetLogFile 设置日志文件并创建所在目录
func (c *HTTPConnector) SetLogFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.LogFile = path
	c.logStream = nil
	return nil
}

// SetLogStream 使用调用方管理的日志流代替日志文件
func (c *HTTPConnector) SetLogStream(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logStream = w
}

// Config 当前配置快照
func (c *HTTPConnector) Config() config.ConnectorConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Start 绑定节点并启动监听器
func (c *HTTPConnector) Start(ctx context.Context, node connector.Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Load() != nil {
		return connector.ErrAlreadyStarted
	}
	if !c.cfg.StartHTTP && !c.cfg.StartHTTPS {
		return connector.ErrNoListenerEnabled
	}
	if err := c.cfg.Validate(); err != nil {
		return &connector.StartError{Stage: "config", Err: err}
	}

	sink, err := c.openSink(node)
	if err != nil {
		return &connector.StartError{Stage: "log", Err: err}
	}

	settings := c.cfg
	policy := NewTimeoutPolicy(settings)

	var gateOpts []session.Option
	if c.repo != nil {
		gateOpts = append(gateOpts, session.WithRepository(c.repo))
	}
	gate := session.NewGate(node, policy, sink, gateOpts...)
	if n, err := gate.Restore(ctx); err != nil {
		c.logger.Warn("Failed to restore persistent sessions", "error", err)
	} else if n > 0 {
		c.logger.Info("Restored persistent sessions", "count", n)
	}

	rt := &Runtime{
		Node:     node,
		Settings: settings,
		Policy:   policy,
		Sink:     sink,
		Gate:     gate,
	}

	set := listener.NewSet(listener.SettingsFromConfig(settings), func(protocol listener.Protocol) (http.Handler, error) {
		return c.builder(rt, protocol)
	})
	if err := set.Start(ctx); err != nil {
		sink.Error(err.Error())
		gate.Close()
		sink.Close()
		return err
	}

	c.current.Store(&active{node: node, runtime: rt, set: set})

	var endpoints []p2p.Endpoint
	for _, l := range set.Listeners() {
		sink.Message(fmt.Sprintf("%s-Connector running on port %d", protocolLabel(l.Protocol()), l.Port()))
		endpoints = append(endpoints, p2p.Endpoint{Protocol: string(l.Protocol()), Port: l.Port()})
	}

	gate.StartReaper(settings.SessionSweepInterval())

	if settings.Advertise && c.announcer != nil {
		if err := c.announcer.Announce(node.NodeID(), endpoints); err != nil {
			c.logger.Warn("Failed to advertise listeners", "error", err)
			sink.Error(fmt.Sprintf("mDNS advertisement failed: %v", err))
		}
	}

	c.logger.Info("Connector started", "node_id", node.NodeID(), "listeners", len(endpoints))
	return nil
}

// openSink 显式日志流优先，否则打开日志文件
func (c *HTTPConnector) openSink(node connector.Node) (*eventsink.Sink, error) {
	if c.logStream != nil {
		return eventsink.New(node, c.logStream), nil
	}
	return eventsink.NewFileSink(node, c.cfg.LogFile)
}

func protocolLabel(p listener.Protocol) string {
	if p == listener.HTTPS {
		return "Https"
	}
	return "Http"
}

// Stop 停止所有监听器并释放运行期资源
// 未启动时为空操作，重复调用不会产生重复事件
func (c *HTTPConnector) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current.Load()
	if cur == nil {
		return nil
	}

	results := cur.set.Stop(ctx)
	cur.runtime.close()

	for _, r := range results {
		label := protocolLabel(r.Protocol)
		if r.Err != nil {
			// 等待失败只记录，不影响其他监听器与后续清理
			c.logger.Error("Listener join failed during stop", "protocol", r.Protocol, "error", r.Err)
			cur.runtime.Sink.Error(fmt.Sprintf("%s-Connector could not be joined: %v", label, r.Err))
			continue
		}
		cur.runtime.Sink.Message(fmt.Sprintf("%s-Connector has been stopped", label))
	}

	if c.announcer != nil {
		c.announcer.Withdraw()
	}
	cur.runtime.Gate.Close()
	if err := cur.runtime.Sink.Close(); err != nil {
		c.logger.Warn("Failed to close connector log", "error", err)
	}

	c.current.Store(nil)
	c.logger.Info("Connector stopped", "node_id", cur.node.NodeID())
	return nil
}

// Interrupt 硬关闭所有监听器
func (c *HTTPConnector) Interrupt() {
	cur := c.current.Load()
	if cur == nil {
		return
	}
	cur.set.Interrupt()
	cur.runtime.Sink.Message("interrupted!")
	c.logger.Warn("interrupted!")
}

// Running 是否正在运行
func (c *HTTPConnector) Running() bool {
	return c.current.Load() != nil
}

// Node 绑定的节点，未启动时为 nil
func (c *HTTPConnector) Node() connector.Node {
	if cur := c.current.Load(); cur != nil {
		return cur.node
	}
	return nil
}

// Runtime 当前运行上下文，未启动时为 nil
func (c *HTTPConnector) Runtime() *Runtime {
	if cur := c.current.Load(); cur != nil {
		return cur.runtime
	}
	return nil
}

// Handlers 各监听器挂载的处理器
func (c *HTTPConnector) Handlers() map[listener.Protocol]http.Handler {
	out := make(map[listener.Protocol]http.Handler)
	if cur := c.current.Load(); cur != nil {
		for _, l := range cur.set.Listeners() {
			out[l.Protocol()] = l.Handler()
		}
	}
	return out
}

// Addrs 各监听器的实际绑定地址
func (c *HTTPConnector) Addrs() map[listener.Protocol]net.Addr {
	out := make(map[listener.Protocol]net.Addr)
	if cur := c.current.Load(); cur != nil {
		for _, l := range cur.set.Listeners() {
			out[l.Protocol()] = l.Addr()
		}
	}
	return out
}

// Sessions 当前会话快照
func (c *HTTPConnector) Sessions() []connector.Session {
	if cur := c.current.Load(); cur != nil {
		return cur.runtime.Gate.Sessions()
	}
	return nil
}

// Join 阻塞直到监听器退出（例如被 Interrupt）
func (c *HTTPConnector) Join(ctx context.Context) error {
	cur := c.current.Load()
	if cur == nil {
		return nil
	}
	return cur.set.Join(ctx)
}
