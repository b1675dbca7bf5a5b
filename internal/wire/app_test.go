package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	appconnector "github.com/nodegate/backend/internal/application/connector"
	"github.com/nodegate/backend/internal/domain/events"
	"github.com/nodegate/backend/internal/infrastructure/config"
	"github.com/nodegate/backend/internal/infrastructure/listener"
	"github.com/nodegate/backend/internal/infrastructure/node"
	"github.com/nodegate/backend/internal/infrastructure/watcher"
	infraws "github.com/nodegate/backend/internal/infrastructure/websocket"
	httpapi "github.com/nodegate/backend/internal/interfaces/http"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	bus := watcher.NewEventBus()
	n := node.NewLocalNode("node-app", bus, node.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, n.StoreAgent("adam", "Adam", "adamspass"))

	hub := infraws.NewHub(&config.WebSocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024})

	cfg := config.DefaultConnectorConfig()
	cfg.HTTPPort = 0
	cfg.ShutdownTimeoutMS = 2000
	conn := appconnector.NewHTTPConnector(cfg, httpapi.NewHandlerBuilder(httpapi.NewRouterBuilder(hub)))
	conn.SetLogStream(io.Discard)

	return NewApp(conn, n, hub, bus)
}

func TestApp_ObserverReceivesSessionEvents(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	defer app.Stop(ctx)

	addr := app.Connector().Addrs()[listener.HTTP].String()
	port := addr[strings.LastIndex(addr, ":")+1:]
	base := "127.0.0.1:" + port

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+base+"/observer?kinds="+string(events.SessionStart), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool {
		return app.wsHub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	body, _ := json.Marshal(map[string]string{"agent_id": "adam", "passphrase": "adamspass"})
	resp, err := http.Post("http://"+base+"/connect", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)

	var event events.ConnectorEvent
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, events.SessionStart, event.Kind)
	assert.Equal(t, "node-app", event.NodeID)
	assert.Equal(t, "adam", event.Subject)
}

func TestApp_StopReleasesObservers(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, app.Start(ctx))

	require.NoError(t, app.Stop(ctx))
	assert.False(t, app.Connector().Running())
	assert.Equal(t, 0, app.wsHub.ClientCount())

	// 重复停止不报错
	assert.NoError(t, app.Stop(ctx))
}

func TestApp_StartFailureReleases(t *testing.T) {
	app := newTestApp(t)
	// 日志文件是目录，启动失败
	require.NoError(t, app.Connector().SetLogFile(t.TempDir()))

	err := app.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, app.Connector().Running())
	assert.Equal(t, 0, app.wsHub.ClientCount())
}

func TestInitializeAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `connector:
  httpPort: 0
  maxRequestBodyBytes: 2048
node:
  id: node-wired
  agents:
    - id: adam
      name: Adam
      passphrase: adamspass
database:
  path: ` + filepath.Join(dir, "nodegate.db") + `
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	t.Setenv(config.EnvConfigPath, path)
	t.Setenv(config.EnvDataDir, dir)
	t.Setenv(config.EnvHTTPPort, "")

	app, cleanup, err := InitializeAll()
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "node-wired", app.Node().NodeID())
	assert.Equal(t, int64(2048), app.Connector().Config().MaxRequestBodyBytes)

	agent, err := app.Node().UnlockAgent(context.Background(), "adam", "adamspass")
	require.NoError(t, err)
	assert.Equal(t, "adam", agent.ID)
}

func TestInitializeAll_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connector:\n  sessionSweepIntervalMs: 0\n"), 0644))
	t.Setenv(config.EnvConfigPath, path)

	_, _, err := InitializeAll()
	assert.ErrorContains(t, err, "sessionSweepIntervalMs")
}
