package connector

import (
	"context"
	"time"
)

// SessionRepository 持久会话仓储
// 只保存 Persistent 为 true 的会话，使其在重启后仍可使用
type SessionRepository interface {
	// Save 插入或覆盖会话
	Save(ctx context.Context, session *Session) error
	// Touch 更新最后访问时间
	Touch(ctx context.Context, sessionID string, lastAccess time.Time) error
	// Delete 删除会话，不存在时不报错
	Delete(ctx context.Context, sessionID string) error
	// LoadAll 读取全部会话
	LoadAll(ctx context.Context) ([]*Session, error)
	// DeleteExpired 删除在 now 时已过期的会话，返回删除数量
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
