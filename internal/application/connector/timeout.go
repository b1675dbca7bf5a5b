package connector

import "github.com/nodegate/backend/internal/infrastructure/config"

// TimeoutPolicy 会话超时协商策略
// 将客户端建议值夹到管理员配置的区间内，无副作用
type TimeoutPolicy struct {
	minSession, maxSession, defaultSession          int64
	minPersistent, maxPersistent, defaultPersistent int64
}

// NewTimeoutPolicy 从连接器配置创建策略
func NewTimeoutPolicy(cfg config.ConnectorConfig) TimeoutPolicy {
	return TimeoutPolicy{
		minSession:        cfg.MinSessionTimeoutMS,
		maxSession:        cfg.MaxSessionTimeoutMS,
		defaultSession:    cfg.DefaultSessionTimeoutMS,
		minPersistent:     cfg.MinPersistentTimeoutMS,
		maxPersistent:     cfg.MaxPersistentTimeoutMS,
		defaultPersistent: cfg.DefaultPersistentTimeoutMS,
	}
}

// ClampSession 例如 ClampSession(0) 总是返回最小会话超时
func (p TimeoutPolicy) ClampSession(suggested int64) int64 {
	return clamp(suggested, p.minSession, p.maxSession)
}

// ClampPersistent 持久会话超时，默认配置下 min == max，结果固定
func (p TimeoutPolicy) ClampPersistent(suggested int64) int64 {
	return clamp(suggested, p.minPersistent, p.maxPersistent)
}

// DefaultSession 客户端未建议时的会话超时
func (p TimeoutPolicy) DefaultSession() int64 {
	return p.defaultSession
}

// DefaultPersistent 客户端未建议时的持久超时
func (p TimeoutPolicy) DefaultPersistent() int64 {
	return p.defaultPersistent
}

// Negotiate 计算新会话的超时
// suggested 为 nil 时使用默认值，默认值同样要经过夹取
func (p TimeoutPolicy) Negotiate(suggested *int64, persistent bool) int64 {
	if persistent {
		if suggested == nil {
			return p.ClampPersistent(p.defaultPersistent)
		}
		return p.ClampPersistent(*suggested)
	}
	if suggested == nil {
		return p.ClampSession(p.defaultSession)
	}
	return p.ClampSession(*suggested)
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
