// Package eventsink 将连接器事件写入日志流并转发给节点观察者
package eventsink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/domain/events"
	"github.com/nodegate/backend/internal/infrastructure/log"
	"github.com/nodegate/backend/internal/infrastructure/watcher"
)

// TimestampLayout 日志行时间格式（本地时区的日期时间）
const TimestampLayout = "Jan 2, 2006 3:04:05 PM"

// resolveTimeout 请求事件解析服务身份的上限
const resolveTimeout = 2 * time.Second

// Sink 事件出口
// 每个事件写一行，写入串行化；Close 之后的事件被丢弃
type Sink struct {
	mu     sync.Mutex
	out    io.Writer
	file   *os.File
	path   string
	closed bool

	rotation *watcher.RotationWatcher
	node     connector.Node
	now      func() time.Time
	logger   *slog.Logger
}

// Option Sink 选项
type Option func(*Sink)

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// New 创建写入 out 的 Sink，out 由调用方管理
func New(node connector.Node, out io.Writer, opts ...Option) *Sink {
	s := &Sink{
		out:    out,
		node:   node,
		now:    time.Now,
		logger: log.NewModuleLogger("connector", "event_sink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFileSink 创建写入日志文件的 Sink，自动创建目录
// 文件被轮转走之后会重新打开
func NewFileSink(node connector.Node, path string, opts ...Option) (*Sink, error) {
	f, err := OpenLogFile(path)
	if err != nil {
		return nil, err
	}

	s := New(node, f, opts...)
	s.file = f
	s.path = path

	rw, err := watcher.NewRotationWatcher(path, s.reopen)
	if err == nil {
		err = rw.Start()
	}
	if err != nil {
		// 轮转监听失败不影响写日志
		s.logger.Warn("Log rotation watching disabled", "path", path, "error", err)
	} else {
		s.rotation = rw
	}

	return s, nil
}

// OpenLogFile 以追加方式打开日志文件，自动创建所在目录
func OpenLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}
	return f, nil
}

// reopen 日志轮转后重新打开文件
func (s *Sink) reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.file == nil {
		return
	}
	f, err := OpenLogFile(s.path)
	if err != nil {
		s.logger.Error("Failed to reopen log file", "path", s.path, "error", err)
		return
	}
	_ = s.file.Close()
	s.file = f
	s.out = f
}

// Emit 写入日志行并转发给节点观察者
func (s *Sink) Emit(kind events.EventType, subject, message string) {
	event := &events.ConnectorEvent{
		Kind:    kind,
		NodeID:  s.node.NodeID(),
		Subject: subject,
		Message: message,
		Time:    s.now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	line := event.Time.Format(TimestampLayout) + "\t" + linePrefix(kind) + message + "\n"
	if _, err := io.WriteString(s.out, line); err != nil {
		s.logger.Warn("Failed to write log line", "error", err)
	}
	s.mu.Unlock()

	s.node.ObserverNotice(event)
}

func linePrefix(kind events.EventType) string {
	switch kind {
	case events.Request:
		return "Request:"
	case events.Error:
		return "Error: "
	default:
		return ""
	}
}

// Message 连接器消息
func (s *Sink) Message(message string) {
	s.Emit(events.ConnectorMessage, "", message)
}

// SessionOpen 会话建立
func (s *Sink) SessionOpen(agentID, message string) {
	s.Emit(events.SessionStart, agentID, message)
}

// SessionClose 会话结束
func (s *Sink) SessionClose(agentID, message string) {
	s.Emit(events.SessionEnd, agentID, message)
}

// Error 连接器错误
func (s *Sink) Error(message string) {
	s.Emit(events.Error, "", message)
}

// Request 记录请求；路径指向服务时解析服务身份作为 subject
// 解析失败不影响事件发出
func (s *Sink) Request(ctx context.Context, path string) {
	subject := ""
	if service, ok := ServiceFromPath(path); ok {
		subject = s.resolveSubject(ctx, service)
	}
	s.Emit(events.Request, subject, path)
}

// resolveSubject 解析服务身份，失败返回空串
func (s *Sink) resolveSubject(ctx context.Context, service string) (subject string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Service resolution panicked", "service", service, "panic", r)
			subject = ""
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	agent, err := s.node.ResolveService(ctx, service)
	if err != nil || agent == nil {
		s.logger.Debug("Service not resolved for request event", "service", service, "error", err)
		return ""
	}
	return agent.ID
}

// ServiceFromPath 从 /<service>/<method> 中取出服务标识
// 最后一个 / 必须在首字符之后，否则不是服务调用
func ServiceFromPath(path string) (string, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	last := strings.LastIndex(path, "/")
	if last <= 0 {
		return "", false
	}
	service := strings.TrimPrefix(path[:last], "/")
	if service == "" {
		return "", false
	}
	return service, true
}

// Close 停止写入并关闭自有文件，可重复调用
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	file := s.file
	s.file = nil
	rotation := s.rotation
	s.mu.Unlock()

	if rotation != nil {
		rotation.Stop()
	}
	if file != nil {
		return file.Close()
	}
	return nil
}
