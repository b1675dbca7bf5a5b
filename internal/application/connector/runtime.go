package connector

import (
	"net/http"
	"sync/atomic"

	"github.com/nodegate/backend/internal/application/session"
	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/infrastructure/config"
	"github.com/nodegate/backend/internal/infrastructure/eventsink"
	"github.com/nodegate/backend/internal/infrastructure/listener"
)

// Runtime 一次运行期间不可变的上下文
// Start 时创建并交给每个监听器的处理器，Stop 后作废
type Runtime struct {
	Node     connector.Node
	Settings config.ConnectorConfig
	Policy   TimeoutPolicy
	Sink     *eventsink.Sink
	Gate     *session.Gate

	closed atomic.Bool
}

// Closed Stop 之后为 true，处理器不再接受新请求
func (r *Runtime) Closed() bool {
	return r.closed.Load()
}

func (r *Runtime) close() {
	r.closed.Store(true)
}

// PrintSecExceptions 安全类错误是否向客户端返回详情
func (r *Runtime) PrintSecExceptions() bool {
	return r.Settings.PrintSecExceptions
}

// FileAccessEnabled 是否开放静态文件
func (r *Runtime) FileAccessEnabled() bool {
	return r.Settings.EnableFileAccess
}

// HandlerBuilder 为监听器构建请求处理器
type HandlerBuilder func(rt *Runtime, protocol listener.Protocol) (http.Handler, error)
