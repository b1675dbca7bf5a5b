package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nodegate/backend/internal/domain/connector"
)

// sessionRepository 持久会话仓储实现
type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository 创建持久会话仓储实例
func NewSessionRepository(db *sql.DB) connector.SessionRepository {
	return &sessionRepository{db: db}
}

// Save 插入或覆盖会话
func (r *sessionRepository) Save(ctx context.Context, session *connector.Session) error {
	query := `
		INSERT INTO connector_sessions (id, agent_id, created_at, last_access, timeout_ms, persistent)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			last_access = excluded.last_access,
			timeout_ms = excluded.timeout_ms,
			persistent = excluded.persistent`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.AgentID,
		session.CreatedAt.UnixMilli(),
		session.LastAccess.UnixMilli(),
		session.TimeoutMS,
		boolToInt(session.Persistent),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Touch 更新最后访问时间
func (r *sessionRepository) Touch(ctx context.Context, sessionID string, lastAccess time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE connector_sessions SET last_access = ? WHERE id = ?`,
		lastAccess.UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Delete 删除会话
func (r *sessionRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM connector_sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// LoadAll 读取全部会话
func (r *sessionRepository) LoadAll(ctx context.Context) ([]*connector.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, agent_id, created_at, last_access, timeout_ms, persistent
		FROM connector_sessions
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*connector.Session
	for rows.Next() {
		var (
			s                     connector.Session
			createdAt, lastAccess int64
			persistent            int
		)
		if err := rows.Scan(&s.ID, &s.AgentID, &createdAt, &lastAccess, &s.TimeoutMS, &persistent); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.CreatedAt = time.UnixMilli(createdAt)
		s.LastAccess = time.UnixMilli(lastAccess)
		s.Persistent = persistent != 0
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteExpired 删除空闲超过超时的会话
func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM connector_sessions WHERE ? - last_access > timeout_ms`,
		now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
