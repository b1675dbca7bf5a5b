// Package session 负责连接器会话的认证与授权
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/infrastructure/log"
)

// TimeoutNegotiator 会话超时协商
type TimeoutNegotiator interface {
	Negotiate(suggested *int64, persistent bool) int64
}

// Recorder 会话事件出口
type Recorder interface {
	SessionOpen(agentID, message string)
	SessionClose(agentID, message string)
}

// ConnectRequest 建立会话的请求
type ConnectRequest struct {
	AgentID    string
	Passphrase string
	// TimeoutMS 客户端建议的超时，nil 表示使用默认值
	TimeoutMS  *int64
	Persistent bool
}

// identityLock 身份锁，refs 为持有或等待者数量，归零时从表中移除
type identityLock struct {
	mu   sync.Mutex
	refs int
}

// entry 会话条目，mu 保护 session 的可变字段
type entry struct {
	mu      sync.Mutex
	session connector.Session
}

// Gate 会话认证网关
// 会话表由 RWMutex 保护，只覆盖查找与插入；同一身份的创建由身份锁串行化
type Gate struct {
	node     connector.Node
	policy   TimeoutNegotiator
	recorder Recorder
	repo     connector.SessionRepository

	mu       sync.RWMutex
	sessions map[string]*entry

	identityMu sync.Mutex
	identities map[string]*identityLock

	reaperOnce sync.Once
	stopOnce   sync.Once
	stopCh     chan struct{}
	doneCh     chan struct{}

	now    func() time.Time
	logger *slog.Logger
}

// Option Gate 选项
type Option func(*Gate)

// WithRepository 持久会话写入仓储
func WithRepository(repo connector.SessionRepository) Option {
	return func(g *Gate) { g.repo = repo }
}

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate 创建会话网关
func NewGate(node connector.Node, policy TimeoutNegotiator, recorder Recorder, opts ...Option) *Gate {
	g := &Gate{
		node:       node,
		policy:     policy,
		recorder:   recorder,
		sessions:   make(map[string]*entry),
		identities: make(map[string]*identityLock),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		now:        time.Now,
		logger:     log.NewModuleLogger("connector", "session_gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// lockIdentity 串行化同一身份的创建，返回释放函数
// 锁表只保留仍被引用的身份，失败的连接不会留下条目
func (g *Gate) lockIdentity(agentID string) (unlock func()) {
	g.identityMu.Lock()
	l, ok := g.identities[agentID]
	if !ok {
		l = &identityLock{}
		g.identities[agentID] = l
	}
	l.refs++
	g.identityMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		g.identityMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.identities, agentID)
		}
		g.identityMu.Unlock()
	}
}

// Connect 解锁 agent 并创建会话
// 未知 agent 与错误凭据都返回 ErrAuthenticationFailed
func (g *Gate) Connect(ctx context.Context, req ConnectRequest) (*connector.Session, error) {
	if req.AgentID == "" {
		return nil, fmt.Errorf("%w: missing agent id", connector.ErrAuthenticationFailed)
	}

	unlock := g.lockIdentity(req.AgentID)
	defer unlock()

	agent, err := g.node.UnlockAgent(ctx, req.AgentID, req.Passphrase)
	if err != nil {
		if errors.Is(err, connector.ErrAgentNotKnown) || errors.Is(err, connector.ErrAuthenticationFailed) {
			return nil, fmt.Errorf("%w: agent %s", connector.ErrAuthenticationFailed, req.AgentID)
		}
		return nil, err
	}

	now := g.now()
	s := connector.Session{
		ID:         uuid.New().String(),
		AgentID:    agent.ID,
		CreatedAt:  now,
		LastAccess: now,
		TimeoutMS:  g.policy.Negotiate(req.TimeoutMS, req.Persistent),
		Persistent: req.Persistent,
	}

	if s.Persistent && g.repo != nil {
		if err := g.repo.Save(ctx, &s); err != nil {
			return nil, fmt.Errorf("failed to persist session: %w", err)
		}
	}

	g.mu.Lock()
	g.sessions[s.ID] = &entry{session: s}
	g.mu.Unlock()

	g.recorder.SessionOpen(agent.ID, fmt.Sprintf("session %s opened for agent %s (timeout %dms)", s.ID, agent.ID, s.TimeoutMS))
	g.logger.Debug("Session opened", "session_id", s.ID, "agent_id", agent.ID, "timeout_ms", s.TimeoutMS, "persistent", s.Persistent)

	out := s
	return &out, nil
}

// lookup 查找会话条目
func (g *Gate) lookup(sessionID string) (*entry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.sessions[sessionID]
	return e, ok
}

// Authenticate 校验会话并刷新最后访问时间
// 已过期的会话与不存在的会话一样返回 ErrNoSession
func (g *Gate) Authenticate(ctx context.Context, sessionID string) (*connector.Session, error) {
	if sessionID == "" {
		return nil, connector.ErrNoSession
	}
	e, ok := g.lookup(sessionID)
	if !ok {
		return nil, connector.ErrNoSession
	}

	now := g.now()
	e.mu.Lock()
	if e.session.Expired(now) {
		s := e.session
		e.mu.Unlock()
		g.expire(ctx, &s)
		return nil, connector.ErrNoSession
	}
	e.session.LastAccess = now
	s := e.session
	e.mu.Unlock()

	if s.Persistent && g.repo != nil {
		if err := g.repo.Touch(ctx, s.ID, now); err != nil {
			g.logger.Warn("Failed to touch persistent session", "session_id", s.ID, "error", err)
		}
	}
	return &s, nil
}

// Touch 刷新会话最后访问时间
func (g *Gate) Touch(ctx context.Context, sessionID string) error {
	_, err := g.Authenticate(ctx, sessionID)
	return err
}

// Authorize 确认会话身份仍然有效并返回调用方
// 会话所属身份不再被节点认识时返回 ErrAccessDenied
func (g *Gate) Authorize(ctx context.Context, session *connector.Session, service, method string) (*connector.Agent, error) {
	if session == nil {
		return nil, connector.ErrNoSession
	}
	if _, ok := g.lookup(session.ID); !ok {
		return nil, connector.ErrNoSession
	}

	agent, err := g.node.GetAgent(ctx, session.AgentID)
	if err != nil {
		if errors.Is(err, connector.ErrAgentNotKnown) {
			return nil, fmt.Errorf("%w: agent %s may not call %s/%s", connector.ErrAccessDenied, session.AgentID, service, method)
		}
		return nil, err
	}
	if agent.ID != session.AgentID {
		return nil, fmt.Errorf("%w: session is scoped to %s", connector.ErrAccessDenied, session.AgentID)
	}
	return agent, nil
}

// Disconnect 结束会话
func (g *Gate) Disconnect(ctx context.Context, sessionID string) error {
	g.mu.Lock()
	e, ok := g.sessions[sessionID]
	if ok {
		delete(g.sessions, sessionID)
	}
	g.mu.Unlock()

	if !ok {
		return connector.ErrNoSession
	}

	e.mu.Lock()
	s := e.session
	e.mu.Unlock()

	if s.Persistent && g.repo != nil {
		if err := g.repo.Delete(ctx, s.ID); err != nil {
			g.logger.Warn("Failed to delete persistent session", "session_id", s.ID, "error", err)
		}
	}
	g.recorder.SessionClose(s.AgentID, fmt.Sprintf("session %s closed by agent %s", s.ID, s.AgentID))
	return nil
}

// expire 移除过期会话，只有真正移除的调用方发出事件
func (g *Gate) expire(ctx context.Context, s *connector.Session) bool {
	g.mu.Lock()
	_, ok := g.sessions[s.ID]
	if ok {
		delete(g.sessions, s.ID)
	}
	g.mu.Unlock()

	if !ok {
		return false
	}
	if s.Persistent && g.repo != nil {
		if err := g.repo.Delete(ctx, s.ID); err != nil {
			g.logger.Warn("Failed to delete expired session", "session_id", s.ID, "error", err)
		}
	}
	g.recorder.SessionClose(s.AgentID, fmt.Sprintf("session %s of agent %s timed out", s.ID, s.AgentID))
	return true
}

// Sweep 清理在 now 时已过期的会话，返回清理数量
func (g *Gate) Sweep(ctx context.Context, now time.Time) int {
	var expired []connector.Session

	g.mu.RLock()
	for _, e := range g.sessions {
		e.mu.Lock()
		if e.session.Expired(now) {
			expired = append(expired, e.session)
		}
		e.mu.Unlock()
	}
	g.mu.RUnlock()

	count := 0
	for i := range expired {
		if g.expire(ctx, &expired[i]) {
			count++
		}
	}

	if g.repo != nil {
		if _, err := g.repo.DeleteExpired(ctx, now); err != nil {
			g.logger.Warn("Failed to delete expired persistent sessions", "error", err)
		}
	}
	if count > 0 {
		g.logger.Debug("Expired sessions swept", "count", count)
	}
	return count
}

// Restore 从仓储恢复未过期的持久会话
func (g *Gate) Restore(ctx context.Context) (int, error) {
	if g.repo == nil {
		return 0, nil
	}

	now := g.now()
	if _, err := g.repo.DeleteExpired(ctx, now); err != nil {
		return 0, err
	}
	stored, err := g.repo.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	restored := 0
	for _, s := range stored {
		if s.Expired(now) {
			continue
		}
		g.sessions[s.ID] = &entry{session: *s}
		restored++
	}
	if restored > 0 {
		g.logger.Info("Persistent sessions restored", "count", restored)
	}
	return restored, nil
}

// Sessions 当前会话快照，按创建时间排序
func (g *Gate) Sessions() []connector.Session {
	g.mu.RLock()
	out := make([]connector.Session, 0, len(g.sessions))
	for _, e := range g.sessions {
		e.mu.Lock()
		out = append(out, e.session)
		e.mu.Unlock()
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// StartReaper 启动后台清理，只生效一次
// interval 不为正时不启动清理，过期会话仍在访问时按不存在处理
func (g *Gate) StartReaper(interval time.Duration) {
	if interval <= 0 {
		g.logger.Warn("Session reaper disabled", "interval", interval)
		return
	}
	g.reaperOnce.Do(func() {
		go g.reap(interval)
	})
}

func (g *Gate) reap(interval time.Duration) {
	defer close(g.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.Sweep(context.Background(), g.now())
		}
	}
}

// Close 停止后台清理并等待其退出，可重复调用
func (g *Gate) Close() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
		started := true
		g.reaperOnce.Do(func() { started = false })
		if started {
			<-g.doneCh
		}
	})
}
