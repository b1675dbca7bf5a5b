package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodegate/backend/internal/domain/events"
)

func dialObserver(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/observer" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, conn *websocket.Conn) events.ConnectorEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev events.ConnectorEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	conn := dialObserver(t, srv, "")
	waitClients(t, hub, 1)

	require.NoError(t, hub.HandleEvent(&events.ConnectorEvent{
		Kind: events.ConnectorMessage, NodeID: "node-1", Message: "hello", Time: time.Now(),
	}))

	ev := readEvent(t, conn)
	assert.Equal(t, events.ConnectorMessage, ev.Kind)
	assert.Equal(t, "hello", ev.Message)
}

func TestHub_KindFilter(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	conn := dialObserver(t, srv, "?kinds=connector.error")
	waitClients(t, hub, 1)

	hub.HandleEvent(&events.ConnectorEvent{Kind: events.Request, Message: "/a/b"})
	hub.HandleEvent(&events.ConnectorEvent{Kind: events.Error, Message: "boom"})

	ev := readEvent(t, conn)
	assert.Equal(t, events.Error, ev.Kind)
	assert.Equal(t, "boom", ev.Message)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	conn := dialObserver(t, srv, "")
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHub_StopIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	hub.Stop()
	hub.Stop()
	// 停止后发布不阻塞
	assert.NoError(t, hub.HandleEvent(&events.ConnectorEvent{Kind: events.Request}))
}

func TestParseKinds(t *testing.T) {
	assert.Nil(t, parseKinds(""))
	kinds := parseKinds("connector.request, connector.error,")
	assert.Len(t, kinds, 2)
	assert.True(t, kinds[events.Request])
	assert.True(t, kinds[events.Error])
}
