package connector

import "time"

// Session 一个已认证客户端的会话
type Session struct {
	ID         string    `json:"session_id"`
	AgentID    string    `json:"agent_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
	// TimeoutMS 协商后的超时，始终落在对应的 [min, max] 区间内
	TimeoutMS  int64 `json:"timeout_ms"`
	Persistent bool  `json:"persistent"`
}

// Timeout 超时时长
func (s *Session) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// ExpiresAt 按最后访问时间计算的过期时刻
func (s *Session) ExpiresAt() time.Time {
	return s.LastAccess.Add(s.Timeout())
}

// Expired 空闲时间超过协商超时即过期
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.LastAccess) > s.Timeout()
}

// Remaining 剩余有效时间，过期返回 0
func (s *Session) Remaining(now time.Time) time.Duration {
	d := s.ExpiresAt().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
