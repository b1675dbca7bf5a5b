//go:build integration
// +build integration

// APIClient 基于 resty 封装的 HTTP 客户端，直接复用处理器的请求与响应结构体
package framework

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nodegate/backend/internal/interfaces/http/handler"
)

// APIClient 测试用 HTTP 客户端
type APIClient struct {
	client    *resty.Client
	baseURL   string
	sessionID string
}

// NewAPIClient 创建测试用 HTTP 客户端
func NewAPIClient(baseURL string) *APIClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &APIClient{
		client:  client,
		baseURL: baseURL,
	}
}

// --- 通用响应结构 ---

// APIResponse 通用 API 响应（与 response.Response / response.ErrorResponse 的 JSON 结构一致）
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Data    T      `json:"data,omitempty"`

	// Status HTTP 状态码，不参与 JSON 解析
	Status int `json:"-"`
}

// HealthData GET /health 响应
type HealthData struct {
	Status   string `json:"status"`
	NodeID   string `json:"node_id"`
	Protocol string `json:"protocol"`
}

// do 执行请求并统一处理成功/错误响应的 JSON 解析
// resty 的 SetResult 仅在 2xx 时解析，SetError 在 4xx/5xx 时解析
// 由于两者的 code/message 字段一致，用同类型接收即可
func do[T any](r *resty.Request, result *APIResponse[T]) *resty.Request {
	return r.SetResult(result).SetError(result)
}

func finish[T any](resp *resty.Response, result *APIResponse[T], err error) (*APIResponse[T], error) {
	if err != nil {
		return nil, err
	}
	result.Status = resp.StatusCode()
	return result, nil
}

// SessionID 当前会话 ID
func (c *APIClient) SessionID() string {
	return c.sessionID
}

// UseSession 切换到指定会话
func (c *APIClient) UseSession(id string) {
	c.sessionID = id
}

// session 附加会话头的请求
func (c *APIClient) session() *resty.Request {
	return c.client.R().SetHeader(handler.SessionHeader, c.sessionID)
}

// --- 健康检查 ---

// Health 健康检查
func (c *APIClient) Health() (*HealthData, error) {
	var result HealthData
	resp, err := c.client.R().SetResult(&result).Get("/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("health check failed: status %d", resp.StatusCode())
	}
	return &result, nil
}

// --- 会话 ---

// Connect 建立会话，成功时记住会话 ID
func (c *APIClient) Connect(req handler.ConnectRequest) (*APIResponse[handler.SessionDTO], error) {
	var result APIResponse[handler.SessionDTO]
	resp, err := do(c.client.R().SetBody(req), &result).Post("/connect")
	out, err := finish(resp, &result, err)
	if err == nil && out.Status == 200 {
		c.sessionID = out.Data.SessionID
	}
	return out, err
}

// Session 查询当前会话
func (c *APIClient) Session() (*APIResponse[handler.SessionDTO], error) {
	var result APIResponse[handler.SessionDTO]
	resp, err := do(c.session(), &result).Get("/session")
	return finish(resp, &result, err)
}

// Disconnect 结束当前会话
func (c *APIClient) Disconnect() (*APIResponse[map[string]bool], error) {
	var result APIResponse[map[string]bool]
	resp, err := do(c.session(), &result).Post("/disconnect")
	return finish(resp, &result, err)
}

// --- 服务调用 ---

// Invoke 调用 /<service>/<method>
func (c *APIClient) Invoke(service, method string, params ...any) (*APIResponse[handler.InvokeResult], error) {
	if params == nil {
		params = []any{}
	}
	var result APIResponse[handler.InvokeResult]
	resp, err := do(c.session().SetBody(handler.InvokeRequest{Params: params}), &result).
		Post(fmt.Sprintf("/%s/%s", service, method))
	return finish(resp, &result, err)
}
