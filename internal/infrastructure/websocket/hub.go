// Package websocket 通过 WebSocket 向观察者推送连接器事件
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nodegate/backend/internal/domain/events"
	"github.com/nodegate/backend/internal/infrastructure/config"
	"github.com/nodegate/backend/internal/infrastructure/log"
)

// 心跳配置
const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// sendBufferSize 每个连接的发送缓冲
const sendBufferSize = 256

// Hub 观察者连接管理中心
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan events.Event
	stop       chan struct{}
	stopped    chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	mu       sync.RWMutex
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// Client 单个观察者连接
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// kinds 为空表示接收所有类型
	kinds map[events.EventType]bool
}

// NewHub 创建 Hub
func NewHub(cfg *config.WebSocketConfig) *Hub {
	readSize, writeSize := 1024, 1024
	if cfg != nil {
		if cfg.ReadBufferSize > 0 {
			readSize = cfg.ReadBufferSize
		}
		if cfg.WriteBufferSize > 0 {
			writeSize = cfg.WriteBufferSize
		}
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan events.Event, sendBufferSize),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readSize,
			WriteBufferSize: writeSize,
			// 跨域策略由连接器的 CORS 中间件负责
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log.NewModuleLogger("websocket", "hub"),
	}
}

// Run 运行 Hub（需要在 goroutine 中运行）
func (h *Hub) Run() {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("Failed to marshal event", "error", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(event.Type()) {
					continue
				}
				select {
				case client.send <- data:
				default:
					// 慢消费者被断开
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Start 启动 Hub（启动后台 goroutine）
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		go h.Run()
	})
}

// Stop 断开所有观察者并停止 Hub，可重复调用
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		started := true
		h.startOnce.Do(func() { started = false })
		if started {
			<-h.stopped
		}
	})
}

// HandleEvent 实现 events.Handler，将事件推送给观察者
func (h *Hub) HandleEvent(event events.Event) error {
	select {
	case h.broadcast <- event:
	case <-h.stop:
	}
	return nil
}

// ClientCount 当前观察者数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS 升级连接并注册观察者
// 查询参数 kinds 为逗号分隔的事件类型过滤
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", "error", err)
		return
	}

	client := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		kinds: parseKinds(r.URL.Query().Get("kinds")),
	}

	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}

	h.logger.Debug("Observer connected", "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}

func parseKinds(raw string) map[events.EventType]bool {
	if raw == "" {
		return nil
	}
	kinds := make(map[events.EventType]bool)
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[events.EventType(k)] = true
		}
	}
	return kinds
}

func (c *Client) wants(kind events.EventType) bool {
	return len(c.kinds) == 0 || c.kinds[kind]
}

// readPump 只处理控制帧，观察者不发送业务消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Observer read error", "error", err)
			}
			return
		}
	}
}

// writePump 写入事件并定时发送 Ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
