//go:build integration
// +build integration

package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodegate/backend/internal/interfaces/http/handler"
	"github.com/nodegate/backend/test/integration/framework"
)

const envelopeService = "nodegate.testing.EnvelopeService"

// startNode 启动单个节点，测试结束时停止
func startNode(t *testing.T, name string, opts ...framework.DaemonOption) *framework.TestDaemon {
	t.Helper()
	framework.RequireDaemonBinary(t)

	d, err := framework.NewTestDaemon(framework.BinaryPath, name, opts...)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func connectAs(t *testing.T, d *framework.TestDaemon, agent framework.TestAgent) *framework.APIClient {
	t.Helper()
	c := framework.NewAPIClient(d.BaseURL())
	resp, err := c.Connect(handler.ConnectRequest{AgentID: agent.ID, Passphrase: agent.Passphrase})
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status, resp.Message)
	return c
}

func TestNode_Health(t *testing.T) {
	d := startNode(t, "health-node")

	health, err := framework.NewAPIClient(d.BaseURL()).Health()
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "health-node", health.NodeID)
	assert.Equal(t, "http", health.Protocol)
}

func TestNode_SessionLifecycle(t *testing.T) {
	d := startNode(t, "session-node")
	adam := framework.DefaultAgents[0]

	c := connectAs(t, d, adam)
	require.NotEmpty(t, c.SessionID())

	resp, err := c.Session()
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)
	assert.Equal(t, adam.ID, resp.Data.AgentID)
	assert.Equal(t, c.SessionID(), resp.Data.SessionID)

	closed, err := c.Disconnect()
	require.NoError(t, err)
	assert.Equal(t, 200, closed.Status)
	assert.True(t, closed.Data["disconnected"])

	resp, err = c.Session()
	require.NoError(t, err)
	assert.Equal(t, 401, resp.Status)
	assert.Equal(t, "no_session", resp.Message)
}

func TestNode_ConnectRejectsBadCredentials(t *testing.T) {
	d := startNode(t, "auth-node")
	c := framework.NewAPIClient(d.BaseURL())

	resp, err := c.Connect(handler.ConnectRequest{AgentID: "adam", Passphrase: "eve-secret"})
	require.NoError(t, err)
	assert.Equal(t, 401, resp.Status)
	assert.Equal(t, "authentication_failed", resp.Message)
	assert.Empty(t, c.SessionID())

	resp, err = c.Connect(handler.ConnectRequest{Passphrase: "x"})
	require.NoError(t, err)
	assert.Equal(t, 400, resp.Status)
	assert.Equal(t, "bad_request", resp.Message)
}

func TestNode_EnvelopeOwnership(t *testing.T) {
	d := startNode(t, "envelope-node")
	adam := connectAs(t, d, framework.DefaultAgents[0])
	eve := connectAs(t, d, framework.DefaultAgents[1])

	resp, err := adam.Invoke(envelopeService, "storeEnvelopeString", "for adam only")
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)

	resp, err = adam.Invoke(envelopeService, "getEnvelopeString")
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)
	assert.Equal(t, "for adam only", resp.Data.Result)

	resp, err = eve.Invoke(envelopeService, "getEnvelopeString")
	require.NoError(t, err)
	assert.Equal(t, 403, resp.Status)
	assert.Equal(t, "access_denied", resp.Message)
	// 节点配置开启了 printSecExceptions
	assert.NotEmpty(t, resp.Detail)
}

func TestNode_InvokeErrors(t *testing.T) {
	d := startNode(t, "errors-node")
	adam := connectAs(t, d, framework.DefaultAgents[0])

	t.Run("未知服务", func(t *testing.T) {
		resp, err := adam.Invoke("com.example.Missing", "doWork")
		require.NoError(t, err)
		assert.Equal(t, 404, resp.Status)
		assert.Equal(t, "not_found", resp.Message)
	})

	t.Run("参数错误", func(t *testing.T) {
		resp, err := adam.Invoke(envelopeService, "storeEnvelopeString", 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 500, resp.Status)
		assert.Equal(t, "server_error", resp.Message)
		assert.Contains(t, resp.Detail, "invalid parameters")
	})

	t.Run("无会话", func(t *testing.T) {
		anon := framework.NewAPIClient(d.BaseURL())
		resp, err := anon.Invoke(envelopeService, "getEnvelopeString")
		require.NoError(t, err)
		assert.Equal(t, 401, resp.Status)
		assert.Equal(t, "no_session", resp.Message)
	})
}
