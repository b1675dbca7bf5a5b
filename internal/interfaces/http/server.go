package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	appconnector "github.com/nodegate/backend/internal/application/connector"
	"github.com/nodegate/backend/internal/infrastructure/listener"
	"github.com/nodegate/backend/internal/infrastructure/log"
	"github.com/nodegate/backend/internal/infrastructure/websocket"
	"github.com/nodegate/backend/internal/interfaces/http/handler"
	"github.com/nodegate/backend/internal/interfaces/http/middleware"
	"github.com/nodegate/backend/internal/interfaces/mcp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/nodegate/backend/docs" // Swagger docs
)

// RouterBuilder 为每个监听器构建 gin 引擎
type RouterBuilder struct {
	hub    *websocket.Hub
	logger *slog.Logger
}

// NewRouterBuilder 创建路由构建器，hub 为空时不注册 /observer
func NewRouterBuilder(hub *websocket.Hub) *RouterBuilder {
	return &RouterBuilder{
		hub:    hub,
		logger: log.NewModuleLogger("http", "router"),
	}
}

// NewHandlerBuilder 把路由构建器交给连接器
func NewHandlerBuilder(b *RouterBuilder) appconnector.HandlerBuilder {
	return b.Build
}

// Build 为一次运行中的某个监听器创建处理器
func (b *RouterBuilder) Build(rt *appconnector.Runtime, protocol listener.Protocol) (http.Handler, error) {
	router := NewRouter(rt, protocol, b.hub)
	b.logger.Debug("Router attached",
		"protocol", protocol,
		"node_id", rt.Node.NodeID(),
		"cors", rt.Settings.EnableCORS,
	)
	return router, nil
}

// NewRouter 注册连接器路由
func NewRouter(rt *appconnector.Runtime, protocol listener.Protocol, hub *websocket.Hub) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log.NewModuleLogger("http", string(protocol))))
	if rt.Settings.EnableCORS {
		router.Use(middleware.CORS(middleware.CORSConfig{
			Domain: rt.Settings.CrossOriginResourceDomain,
			MaxAge: rt.Settings.CrossOriginResourceMaxAge,
		}))
	}
	router.Use(middleware.Available(rt.Closed))
	router.Use(middleware.RequestEvents(rt.Sink))
	router.Use(middleware.EnsureUTF8Body(rt.Settings.MaxRequestBodyBytes))

	h := handler.NewConnectorHandler(rt)

	router.POST("/connect", h.Connect)
	router.GET("/session", h.Session)
	router.POST("/disconnect", h.Disconnect)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"node_id":  rt.Node.NodeID(),
			"protocol": protocol,
		})
	})

	if hub != nil {
		router.GET("/observer", gin.WrapF(hub.ServeWS))
	}

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// MCP SSE 端点只开在明文监听器上
	if rt.Settings.EnableMCP && protocol == listener.HTTP {
		router.Any("/mcp/sse", gin.WrapH(mcp.NewServer(rt).GetHandler()))
	}

	// 其余 POST 为服务调用，GET 为静态文件
	router.NoRoute(h.Fallback)

	return router
}
