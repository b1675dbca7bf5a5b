package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/infrastructure/config"
)

// setupTestDB 创建临时测试数据库
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, InitDatabase(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func newSession(id string, lastAccess time.Time, timeoutMS int64) *connector.Session {
	return &connector.Session{
		ID:         id,
		AgentID:    "adam",
		CreatedAt:  lastAccess,
		LastAccess: lastAccess,
		TimeoutMS:  timeoutMS,
		Persistent: true,
	}
}

func TestSessionRepository_SaveAndLoad(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.UnixMilli(time.Now().UnixMilli())

	require.NoError(t, repo.Save(ctx, newSession("s1", now, 3600000)))

	sessions, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, "adam", sessions[0].AgentID)
	assert.Equal(t, int64(3600000), sessions[0].TimeoutMS)
	assert.True(t, sessions[0].Persistent)
	assert.True(t, now.Equal(sessions[0].LastAccess))
}

func TestSessionRepository_SaveOverwrites(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	s := newSession("s1", now, 1000)
	require.NoError(t, repo.Save(ctx, s))
	s.TimeoutMS = 2000
	require.NoError(t, repo.Save(ctx, s))

	sessions, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(2000), sessions[0].TimeoutMS)
}

func TestSessionRepository_TouchAndDelete(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()
	start := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, repo.Save(ctx, newSession("s1", start, 1000)))
	later := start.Add(5 * time.Second)
	require.NoError(t, repo.Touch(ctx, "s1", later))

	sessions, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, later.Equal(sessions[0].LastAccess))

	require.NoError(t, repo.Delete(ctx, "s1"))
	require.NoError(t, repo.Delete(ctx, "missing"))

	sessions, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	repo := NewSessionRepository(setupTestDB(t))
	ctx := context.Background()
	start := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, repo.Save(ctx, newSession("short", start, 1000)))
	require.NoError(t, repo.Save(ctx, newSession("long", start, 60000)))

	// 恰好到达超时不算过期
	n, err := repo.DeleteExpired(ctx, start.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = repo.DeleteExpired(ctx, start.Add(time.Second+time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sessions, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "long", sessions[0].ID)
}

func TestProvideDB_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nodegate.db")

	db, cleanup, err := ProvideDB(&config.DatabaseConfig{Path: path})
	require.NoError(t, err)
	defer cleanup()

	repo := NewSessionRepository(db)
	sessions, err := repo.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.FileExists(t, path)
}
