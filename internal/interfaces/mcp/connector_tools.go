package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nodegate/backend/internal/domain/connector"
)

// ConnectorStatusInput 状态工具输入（空输入）
type ConnectorStatusInput struct{}

// ConnectorStatusOutput 状态工具输出
type ConnectorStatusOutput struct {
	NodeID              string `json:"node_id" jsonschema:"节点 ID"`
	Running             bool   `json:"running" jsonschema:"是否接受请求"`
	StartHTTP           bool   `json:"start_http" jsonschema:"是否启用 http 监听器"`
	HTTPPort            int    `json:"http_port" jsonschema:"配置的 http 端口"`
	StartHTTPS          bool   `json:"start_https" jsonschema:"是否启用 https 监听器"`
	HTTPSPort           int    `json:"https_port" jsonschema:"配置的 https 端口"`
	SessionCount        int    `json:"session_count" jsonschema:"打开的会话数"`
	PreferLocalServices bool   `json:"prefer_local_services" jsonschema:"是否优先本地服务实例"`
	FileAccess          bool   `json:"file_access" jsonschema:"是否开放静态文件"`
}

// ListSessionsInput 会话列表工具输入
type ListSessionsInput struct {
	AgentID string `json:"agent_id,omitempty" jsonschema:"只列出该 agent 的会话"`
}

// SessionInfo 会话摘要
type SessionInfo struct {
	SessionID   string `json:"session_id" jsonschema:"会话 ID"`
	AgentID     string `json:"agent_id" jsonschema:"agent ID"`
	TimeoutMS   int64  `json:"timeout_ms" jsonschema:"协商后的超时（毫秒）"`
	Persistent  bool   `json:"persistent" jsonschema:"是否持久会话"`
	LastAccess  string `json:"last_access" jsonschema:"最后访问时间 RFC3339"`
	RemainingMS int64  `json:"remaining_ms" jsonschema:"剩余空闲时间（毫秒）"`
}

// ListSessionsOutput 会话列表工具输出
type ListSessionsOutput struct {
	Sessions []SessionInfo `json:"sessions" jsonschema:"会话列表"`
	Total    int           `json:"total" jsonschema:"会话总数"`
}

// CloseSessionInput 关闭会话工具输入
type CloseSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"会话 ID"`
}

// CloseSessionOutput 关闭会话工具输出
type CloseSessionOutput struct {
	Closed  bool   `json:"closed" jsonschema:"是否关闭了会话"`
	Message string `json:"message" jsonschema:"结果说明"`
}

func (s *MCPServer) getConnectorStatusTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ConnectorStatusInput,
) (*mcp.CallToolResult, ConnectorStatusOutput, error) {
	cfg := s.rt.Settings
	return nil, ConnectorStatusOutput{
		NodeID:              s.rt.Node.NodeID(),
		Running:             !s.rt.Closed(),
		StartHTTP:           cfg.StartHTTP,
		HTTPPort:            cfg.HTTPPort,
		StartHTTPS:          cfg.StartHTTPS,
		HTTPSPort:           cfg.HTTPSPort,
		SessionCount:        len(s.rt.Gate.Sessions()),
		PreferLocalServices: cfg.PreferLocalServices,
		FileAccess:          cfg.EnableFileAccess,
	}, nil
}

func (s *MCPServer) listSessionsTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListSessionsInput,
) (*mcp.CallToolResult, ListSessionsOutput, error) {
	now := time.Now()
	out := ListSessionsOutput{Sessions: []SessionInfo{}}
	for _, sess := range s.rt.Gate.Sessions() {
		if input.AgentID != "" && sess.AgentID != input.AgentID {
			continue
		}
		out.Sessions = append(out.Sessions, SessionInfo{
			SessionID:   sess.ID,
			AgentID:     sess.AgentID,
			TimeoutMS:   sess.TimeoutMS,
			Persistent:  sess.Persistent,
			LastAccess:  sess.LastAccess.Format(time.RFC3339),
			RemainingMS: sess.Remaining(now).Milliseconds(),
		})
	}
	out.Total = len(out.Sessions)
	return nil, out, nil
}

func (s *MCPServer) closeSessionTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CloseSessionInput,
) (*mcp.CallToolResult, CloseSessionOutput, error) {
	if input.SessionID == "" {
		return nil, CloseSessionOutput{}, fmt.Errorf("session_id is required")
	}
	if err := s.rt.Gate.Disconnect(ctx, input.SessionID); err != nil {
		if errors.Is(err, connector.ErrNoSession) {
			return nil, CloseSessionOutput{Closed: false, Message: "no such session"}, nil
		}
		return nil, CloseSessionOutput{}, err
	}
	s.logger.Info("Session closed via MCP", "session_id", input.SessionID)
	return nil, CloseSessionOutput{Closed: true, Message: "session closed"}, nil
}
