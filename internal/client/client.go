package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nodegate/backend/internal/infrastructure/log"
)

// DefaultRequestTimeout 单个请求的默认超时
const DefaultRequestTimeout = 30 * time.Second

// sessionHeader 会话 ID 请求头
const sessionHeader = "X-Session-Id"

// Client 连接器客户端，以一个 agent 身份调用远端服务
type Client struct {
	baseURL    string
	agentID    string
	passphrase string
	httpClient *http.Client
	logger     *slog.Logger

	requestTimeout time.Duration

	mu         sync.Mutex
	sessionID  string
	timeoutMS  *int64
	persistent bool
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 使用自定义 http.Client，例如信任自签名证书
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRequestTimeout 设置单个请求超时
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// New 创建客户端，baseURL 形如 http://host:port
func New(baseURL, agentID, passphrase string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		agentID:    agentID,
		passphrase: passphrase,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		logger:     log.NewModuleLogger("client", "connector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.requestTimeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.requestTimeout
		c.httpClient = &hc
	}
	return c
}

// SetSessionTimeout 下次建立会话时申请的超时（毫秒）
func (c *Client) SetSessionTimeout(timeoutMS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeoutMS = &timeoutMS
}

// SetPersistent 下次建立会话时是否申请持久会话
func (c *Client) SetPersistent(persistent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistent = persistent
}

// SessionID 当前会话 ID，未连接时为空
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connected 是否持有会话
func (c *Client) Connected() bool {
	return c.SessionID() != ""
}

// Session 连接器返回的会话信息
type Session struct {
	SessionID  string `json:"session_id"`
	AgentID    string `json:"agent_id"`
	TimeoutMS  int64  `json:"timeout_ms"`
	Persistent bool   `json:"persistent"`
	ExpiresAt  int64  `json:"expires_at"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

// Connect 建立会话
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	body := map[string]any{
		"agent_id":   c.agentID,
		"passphrase": c.passphrase,
		"persistent": c.persistent,
	}
	if c.timeoutMS != nil {
		body["timeout_ms"] = *c.timeoutMS
	}
	c.mu.Unlock()

	data, err := c.post(ctx, "/connect", "", body)
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: malformed session response: %v", ErrServerError, err)
	}

	c.mu.Lock()
	c.sessionID = s.SessionID
	c.mu.Unlock()

	c.logger.Debug("Connected", "base_url", c.baseURL, "agent_id", s.AgentID, "timeout_ms", s.TimeoutMS)
	return &s, nil
}

// Disconnect 结束会话，未连接时直接返回
func (c *Client) Disconnect(ctx context.Context) error {
	id := c.SessionID()
	if id == "" {
		return nil
	}

	_, err := c.post(ctx, "/disconnect", id, nil)
	if err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}

	c.mu.Lock()
	if c.sessionID == id {
		c.sessionID = ""
	}
	c.mu.Unlock()
	return nil
}

// Invoke 调用 service 的 method
// 未连接时先建立会话；会话失效时重连一次再重试
func (c *Client) Invoke(ctx context.Context, service, method string, params ...any) (any, error) {
	if params == nil {
		params = []any{}
	}

	if !c.Connected() {
		if _, err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	result, err := c.invokeOnce(ctx, service, method, params)
	if errors.Is(err, ErrNoSession) {
		c.logger.Debug("Session lost, reconnecting", "service", service, "method", method)
		if _, err := c.Connect(ctx); err != nil {
			return nil, err
		}
		result, err = c.invokeOnce(ctx, service, method, params)
	}
	return result, err
}

func (c *Client) invokeOnce(ctx context.Context, service, method string, params []any) (any, error) {
	data, err := c.post(ctx, "/"+service+"/"+method, c.SessionID(), map[string]any{"params": params})
	if err != nil {
		return nil, err
	}

	var out struct {
		Result any `json:"result"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed invocation response: %v", ErrServerError, err)
	}
	return out.Result, nil
}

// post 发送 JSON 请求并解出 data
func (c *Client) post(ctx context.Context, path, sessionID string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("%w: malformed response: %v", ErrServerError, err)
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{
			Status:  resp.StatusCode,
			Message: env.Message,
			Detail:  env.Detail,
			kind:    kindOf(resp.StatusCode, env.Message),
		}
	}
	return env.Data, nil
}
