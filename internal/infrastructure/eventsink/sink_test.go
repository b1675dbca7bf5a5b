package eventsink

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/domain/events"
)

type fakeNode struct {
	mu       sync.Mutex
	notices  []*events.ConnectorEvent
	services map[string]*connector.Agent
	panicky  bool
}

func (n *fakeNode) NodeID() string { return "node-1" }

func (n *fakeNode) ObserverNotice(event *events.ConnectorEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, event)
}

func (n *fakeNode) UnlockAgent(context.Context, string, string) (*connector.Agent, error) {
	return nil, connector.ErrAuthenticationFailed
}

func (n *fakeNode) GetAgent(context.Context, string) (*connector.Agent, error) {
	return nil, connector.ErrAgentNotKnown
}

func (n *fakeNode) ResolveService(_ context.Context, service string) (*connector.Agent, error) {
	if n.panicky {
		panic("resolver exploded")
	}
	if a, ok := n.services[service]; ok {
		return a, nil
	}
	return nil, connector.ErrNotFound
}

func (n *fakeNode) Invoke(context.Context, *connector.Invocation) (any, error) {
	return nil, connector.ErrNotFound
}

func (n *fakeNode) events() []*events.ConnectorEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*events.ConnectorEvent(nil), n.notices...)
}

var fixedTime = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.Local)

func newTestSink(node *fakeNode) (*Sink, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(node, buf, WithClock(func() time.Time { return fixedTime })), buf
}

func TestSink_LineFormat(t *testing.T) {
	node := &fakeNode{}
	s, buf := newTestSink(node)

	s.Message("HTTP connector running on port 8080")
	s.Error("boom")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Mar 5, 2024 2:07:09 PM\tHTTP connector running on port 8080", lines[0])
	assert.Equal(t, "Mar 5, 2024 2:07:09 PM\tError: boom", lines[1])

	got := node.events()
	require.Len(t, got, 2)
	assert.Equal(t, events.ConnectorMessage, got[0].Kind)
	assert.Equal(t, "node-1", got[0].NodeID)
	assert.Equal(t, events.Error, got[1].Kind)
}

func TestSink_RequestResolvesService(t *testing.T) {
	node := &fakeNode{services: map[string]*connector.Agent{
		"com.example.MyService": {ID: "com.example.MyService", IsService: true},
	}}
	s, buf := newTestSink(node)

	s.Request(context.Background(), "/com.example.MyService/doWork")
	s.Request(context.Background(), "/favicon.ico")

	got := node.events()
	require.Len(t, got, 2)
	assert.Equal(t, events.Request, got[0].Kind)
	assert.Equal(t, "com.example.MyService", got[0].Subject)
	assert.Equal(t, "/com.example.MyService/doWork", got[0].Message)
	assert.Empty(t, got[1].Subject)
	assert.Contains(t, buf.String(), "\tRequest:/favicon.ico\n")
}

func TestSink_RequestResolutionFailureStillEmits(t *testing.T) {
	node := &fakeNode{}
	s, _ := newTestSink(node)

	s.Request(context.Background(), "/unknown.Service/call")

	got := node.events()
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Subject)

	node.panicky = true
	assert.NotPanics(t, func() {
		s.Request(context.Background(), "/a.B/c")
	})
	assert.Len(t, node.events(), 2)
}

func TestServiceFromPath(t *testing.T) {
	tests := []struct {
		path    string
		service string
		ok      bool
	}{
		{"/com.example.MyService/doWork", "com.example.MyService", true},
		{"/a/b/c", "a/b", true},
		{"/svc/method?x=1/2", "svc", true},
		{"/favicon.ico", "", false},
		{"/", "", false},
		{"", "", false},
		{"noslash", "", false},
		{"//method", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			service, ok := ServiceFromPath(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.service, service)
		})
	}
}

func TestSink_DropsEventsAfterClose(t *testing.T) {
	node := &fakeNode{}
	s, buf := newTestSink(node)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	s.Message("late")

	assert.Empty(t, buf.String())
	assert.Empty(t, node.events())
}

func TestSink_ConcurrentWritesAreWholeLines(t *testing.T) {
	node := &fakeNode{}
	s, buf := newTestSink(node)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				s.Message("concurrent message")
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 500)
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, "\tconcurrent message"), line)
	}
}

func TestNewFileSink_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "log", "httpConnector.log")

	s, err := NewFileSink(&fakeNode{}, path)
	require.NoError(t, err)
	s.Message("hello")
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\thello\n")
}

func TestNewFileSink_ReopensAfterRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connector.log")

	s, err := NewFileSink(&fakeNode{}, path)
	require.NoError(t, err)
	defer s.Close()

	s.Message("before")
	require.NoError(t, os.Rename(path, path+".1"))

	require.Eventually(t, func() bool {
		s.Message("after")
		data, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(data), "after")
	}, 3*time.Second, 50*time.Millisecond)

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Contains(t, string(rotated), "before")
}
