package interfaces

import (
	"github.com/nodegate/backend/internal/interfaces/http"
	"github.com/nodegate/backend/internal/interfaces/mcp"
)

// RouterBuilder 路由构建器类型别名
type RouterBuilder = http.RouterBuilder

// MCPServer MCP 服务器类型别名
type MCPServer = mcp.MCPServer
