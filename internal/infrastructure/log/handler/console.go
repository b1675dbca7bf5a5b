package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ANSI 颜色代码
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// requestIDWidth 前缀中请求 ID 保留的长度
const requestIDWidth = 8

// 进入前缀而不再重复输出的属性
var prefixKeys = map[string]bool{
	"module":     true,
	"component":  true,
	"service":    true,
	"request_id": true,
}

// ConsoleHandler 单行彩色控制台处理器
// 格式：LEVEL time [module/component] (req) message key=value ...
type ConsoleHandler struct {
	opts  *slog.HandlerOptions
	mu    *sync.Mutex
	out   io.Writer
	attrs []slog.Attr
	group string
}

// NewConsoleHandler 创建控制台处理器
func NewConsoleHandler(out io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &ConsoleHandler{
		out:  out,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

// Enabled 检查日志级别是否启用
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.opts.Level == nil {
		return level >= slog.LevelInfo
	}
	return level >= h.opts.Level.Level()
}

// Handle 处理日志记录
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	all := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	all = append(all, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		all = append(all, a)
		return true
	})

	prefix := map[string]string{}
	for _, a := range all {
		if prefixKeys[a.Key] {
			prefix[a.Key] = a.Value.String()
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s%-5s%s %s",
		levelColor(r.Level), r.Level.String(), colorReset,
		r.Time.Format("2006-01-02T15:04:05.000Z07:00"),
	)
	switch {
	case prefix["module"] != "" && prefix["component"] != "":
		fmt.Fprintf(&buf, " [%s/%s]", prefix["module"], prefix["component"])
	case prefix["module"] != "":
		fmt.Fprintf(&buf, " [%s]", prefix["module"])
	}
	if id := prefix["request_id"]; id != "" {
		if len(id) > requestIDWidth {
			id = id[:requestIDWidth]
		}
		fmt.Fprintf(&buf, " %s(%s)%s", colorGray, id, colorReset)
	}
	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	for _, a := range all {
		if prefixKeys[a.Key] {
			continue
		}
		fmt.Fprintf(&buf, " %s=%v", a.Key, a.Value)
	}
	if h.opts.AddSource && r.PC != 0 {
		fmt.Fprintf(&buf, " %s%s%s", colorGray, source(r.PC), colorReset)
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

// WithAttrs 返回带有额外属性的处理器
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	next.attrs = append(next.attrs, attrs...)
	return &next
}

// WithGroup 返回带有分组的处理器
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if next.group != "" {
		next.group = next.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorGreen
	default:
		return colorBlue
	}
}
