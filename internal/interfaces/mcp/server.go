package mcp

import (
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	appconnector "github.com/nodegate/backend/internal/application/connector"
	"github.com/nodegate/backend/internal/infrastructure/log"
)

// ServerName MCP 实现名称
const ServerName = "nodegate-connector"

// ServerVersion MCP 实现版本
const ServerVersion = "0.1.0"

// MCPServer 连接器管理用 MCP 服务器
// 每次连接器运行创建一个，工具读取该次运行的 Runtime
type MCPServer struct {
	server  *mcp.Server
	handler http.Handler
	rt      *appconnector.Runtime
	logger  *slog.Logger
}

// NewServer 创建 MCP 服务器并注册连接器工具
func NewServer(rt *appconnector.Runtime) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s := &MCPServer{
		server: server,
		rt:     rt,
		logger: log.NewModuleLogger("mcp", "server"),
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_connector_status",
		Description: "Get the status of the node connector: node id, whether it accepts requests, configured listeners and the number of open sessions. No parameters required.",
	}, s.getConnectorStatusTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List the open client sessions with their agent id, negotiated timeout, persistence flag and remaining idle time. Parameters: agent_id (string, optional) - only sessions of this agent.",
	}, s.listSessionsTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "close_session",
		Description: "Close an open client session. Parameters: session_id (string, required). Returns whether a session was closed.",
	}, s.closeSessionTool)

	s.handler = mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			return server
		},
		nil,
	)
	return s
}

// GetHandler SSE 端点处理器
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}
