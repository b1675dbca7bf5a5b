package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/domain/events"
	"github.com/nodegate/backend/internal/domain/p2p"
	"github.com/nodegate/backend/internal/infrastructure/config"
	"github.com/nodegate/backend/internal/infrastructure/listener"
	"github.com/nodegate/backend/internal/infrastructure/listener/listenertest"
)

type fakeNode struct{}

func (fakeNode) NodeID() string                        { return "node-1" }
func (fakeNode) ObserverNotice(*events.ConnectorEvent) {}
func (fakeNode) UnlockAgent(context.Context, string, string) (*connector.Agent, error) {
	return nil, connector.ErrAuthenticationFailed
}
func (fakeNode) GetAgent(context.Context, string) (*connector.Agent, error) {
	return nil, connector.ErrAgentNotKnown
}
func (fakeNode) ResolveService(context.Context, string) (*connector.Agent, error) {
	return nil, connector.ErrNotFound
}
func (fakeNode) Invoke(context.Context, *connector.Invocation) (any, error) {
	return nil, connector.ErrNotFound
}

// lockedBuffer 并发安全的日志流
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// MockAnnouncer 模拟 Announcer
type MockAnnouncer struct {
	mock.Mock
}

func (m *MockAnnouncer) Announce(nodeID string, endpoints []p2p.Endpoint) error {
	args := m.Called(nodeID, endpoints)
	return args.Error(0)
}

func (m *MockAnnouncer) Withdraw() {
	m.Called()
}

func echoBuilder(rt *Runtime, protocol listener.Protocol) (http.Handler, error) {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s:%s", protocol, rt.Node.NodeID())
	}), nil
}

func testConfig() config.ConnectorConfig {
	cfg := config.DefaultConnectorConfig()
	cfg.HTTPPort = 0
	cfg.HTTPSPort = 0
	cfg.SessionSweepIntervalMS = 50
	cfg.ShutdownTimeoutMS = 2000
	return cfg
}

func newTestConnector(cfg config.ConnectorConfig, opts ...Option) (*HTTPConnector, *lockedBuffer) {
	c := NewHTTPConnector(cfg, echoBuilder, opts...)
	buf := &lockedBuffer{}
	c.SetLogStream(buf)
	return c, buf
}

func TestHTTPConnector_NoListenerEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.StartHTTP = false
	cfg.StartHTTPS = false
	c, buf := newTestConnector(cfg)

	err := c.Start(context.Background(), fakeNode{})
	assert.ErrorIs(t, err, connector.ErrNoListenerEnabled)
	assert.False(t, c.Running())
	assert.Empty(t, buf.String())
}

func TestHTTPConnector_InvalidSweepInterval(t *testing.T) {
	cfg := testConfig()
	cfg.SessionSweepIntervalMS = 0
	c, buf := newTestConnector(cfg)

	err := c.Start(context.Background(), fakeNode{})
	var startErr *connector.StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "config", startErr.Stage)
	assert.ErrorContains(t, err, "sessionSweepIntervalMs")
	assert.False(t, c.Running())
	assert.Empty(t, buf.String())
	assert.NoError(t, c.Stop(context.Background()))
}

func TestHTTPConnector_StartServeStop(t *testing.T) {
	c, buf := newTestConnector(testConfig())
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, fakeNode{}))
	assert.True(t, c.Running())
	assert.Equal(t, "node-1", c.Node().NodeID())
	require.NotNil(t, c.Runtime())
	assert.False(t, c.Runtime().Closed())

	handlers := c.Handlers()
	require.Len(t, handlers, 1)
	assert.NotNil(t, handlers[listener.HTTP])

	addr := c.Addrs()[listener.HTTP]
	require.NotNil(t, addr)
	resp, err := http.Get("http://" + addr.String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "http:node-1", string(body))

	port := strings.TrimPrefix(addr.String()[strings.LastIndex(addr.String(), ":"):], ":")
	assert.Contains(t, buf.String(), "Http-Connector running on port "+port)

	rt := c.Runtime()
	require.NoError(t, c.Stop(ctx))
	assert.True(t, rt.Closed())
	assert.False(t, c.Running())
	assert.Nil(t, c.Runtime())
	assert.Empty(t, c.Handlers())

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, 1, strings.Count(buf.String(), "Http-Connector has been stopped"))
}

func TestHTTPConnector_BothListeners(t *testing.T) {
	cfg := testConfig()
	cfg.StartHTTPS = true
	cfg.SSLKeystore = listenertest.WriteKeystore(t)
	c, buf := newTestConnector(cfg)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, fakeNode{}))
	handlers := c.Handlers()
	assert.Len(t, handlers, 2)
	assert.NotNil(t, handlers[listener.HTTP])
	assert.NotNil(t, handlers[listener.HTTPS])

	httpsAddr := c.Addrs()[listener.HTTPS].String()
	httpsPort := httpsAddr[strings.LastIndex(httpsAddr, ":")+1:]
	assert.Contains(t, buf.String(), "Https-Connector running on port "+httpsPort)

	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "Http-Connector has been stopped"))
	assert.Equal(t, 1, strings.Count(out, "Https-Connector has been stopped"))
}

func TestHTTPConnector_StartTwice(t *testing.T) {
	c, _ := newTestConnector(testConfig())
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, fakeNode{}))
	defer c.Stop(ctx)

	assert.ErrorIs(t, c.Start(ctx, fakeNode{}), connector.ErrAlreadyStarted)
}

func TestHTTPConnector_SetPort(t *testing.T) {
	c, _ := newTestConnector(testConfig())

	assert.ErrorIs(t, c.SetPort(79), connector.ErrIllegalPort)
	assert.ErrorIs(t, c.SetHTTPSPort(0), connector.ErrIllegalPort)
	require.NoError(t, c.SetPort(8081))
	require.NoError(t, c.SetHTTPSPort(8443))
	assert.Equal(t, 8081, c.Config().HTTPPort)
	assert.Equal(t, 8443, c.Config().HTTPSPort)

	// 启动后不能再修改端口
	c.mu.Lock()
	c.cfg.HTTPPort = 0
	c.mu.Unlock()
	require.NoError(t, c.Start(context.Background(), fakeNode{}))
	defer c.Stop(context.Background())

	assert.ErrorIs(t, c.SetPort(9000), connector.ErrPortChangeAfterStart)
	assert.ErrorIs(t, c.SetHTTPSPort(9001), connector.ErrPortChangeAfterStart)
}

func TestHTTPConnector_SetSocketTimeout(t *testing.T) {
	c, _ := newTestConnector(testConfig())
	c.SetSocketTimeout(1234)
	assert.Equal(t, int64(1234), c.Config().SocketTimeoutMS)
}

func TestHTTPConnector_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "connector.log")
	c := NewHTTPConnector(testConfig(), echoBuilder)
	require.NoError(t, c.SetLogFile(path))
	assert.DirExists(t, filepath.Dir(path))

	require.NoError(t, c.Start(context.Background(), fakeNode{}))
	require.NoError(t, c.Stop(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Http-Connector running on port")
	assert.Contains(t, string(data), "Http-Connector has been stopped")
}

func TestHTTPConnector_LogFileFailure(t *testing.T) {
	cfg := testConfig()
	// 目录不能作为日志文件打开
	cfg.LogFile = t.TempDir()
	c := NewHTTPConnector(cfg, echoBuilder)

	err := c.Start(context.Background(), fakeNode{})
	var startErr *connector.StartError
	require.True(t, errors.As(err, &startErr))
	assert.Equal(t, "log", startErr.Stage)
	assert.False(t, c.Running())
}

func TestHTTPConnector_ListenerFailureLeavesStopped(t *testing.T) {
	cfg := testConfig()
	cfg.StartHTTPS = true
	cfg.SSLKeystore = filepath.Join(t.TempDir(), "missing")
	c, buf := newTestConnector(cfg)

	err := c.Start(context.Background(), fakeNode{})
	var startErr *connector.StartError
	require.True(t, errors.As(err, &startErr))
	assert.Equal(t, "https", startErr.Stage)
	assert.False(t, c.Running())
	assert.Contains(t, buf.String(), "Error: ")

	// 失败后可以修复配置重新启动
	c.mu.Lock()
	c.cfg.StartHTTPS = false
	c.mu.Unlock()
	require.NoError(t, c.Start(context.Background(), fakeNode{}))
	require.NoError(t, c.Stop(context.Background()))
}

func TestHTTPConnector_Interrupt(t *testing.T) {
	c, buf := newTestConnector(testConfig())

	// 未启动时无副作用
	c.Interrupt()
	assert.Empty(t, buf.String())

	require.NoError(t, c.Start(context.Background(), fakeNode{}))
	c.Interrupt()
	require.NoError(t, c.Join(context.Background()))
	assert.Contains(t, buf.String(), "interrupted!")

	require.NoError(t, c.Stop(context.Background()))
	assert.False(t, c.Running())
}

func TestHTTPConnector_Advertise(t *testing.T) {
	cfg := testConfig()
	cfg.Advertise = true
	announcer := new(MockAnnouncer)
	announcer.On("Announce", "node-1", mock.MatchedBy(func(eps []p2p.Endpoint) bool {
		return len(eps) == 1 && eps[0].Protocol == "http" && eps[0].Port != 0
	})).Return(nil).Once()
	announcer.On("Withdraw").Return().Once()
	c, _ := newTestConnector(cfg, WithAnnouncer(announcer))

	require.NoError(t, c.Start(context.Background(), fakeNode{}))
	require.NoError(t, c.Stop(context.Background()))
	announcer.AssertExpectations(t)
}

func TestHTTPConnector_AdvertiseFailureIsNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Advertise = true
	announcer := new(MockAnnouncer)
	announcer.On("Announce", mock.Anything, mock.Anything).Return(errors.New("multicast unavailable"))
	announcer.On("Withdraw").Return()
	c, buf := newTestConnector(cfg, WithAnnouncer(announcer))

	require.NoError(t, c.Start(context.Background(), fakeNode{}))
	assert.True(t, c.Running())
	require.NoError(t, c.Stop(context.Background()))
	assert.Contains(t, buf.String(), "mDNS advertisement failed: multicast unavailable")
}
