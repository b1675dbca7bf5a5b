// Package node 提供进程内的 p2p 节点实现
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nodegate/backend/internal/domain/connector"
	"github.com/nodegate/backend/internal/domain/events"
	"github.com/nodegate/backend/internal/infrastructure/log"
)

// Method 服务方法
type Method func(ctx context.Context, caller *connector.Agent, params []any) (any, error)

// Service 可注册到节点的服务
type Service interface {
	// Name 服务标识，例如 com.example.MyService
	Name() string
	// Methods 方法表
	Methods() map[string]Method
}

// agentRecord 已存储的 agent
type agentRecord struct {
	agent connector.Agent
	hash  []byte
}

// instance 服务实例，local 为 false 表示由其他节点托管
type instance struct {
	nodeID  string
	local   bool
	methods map[string]Method
}

// LocalNode 进程内节点
type LocalNode struct {
	id   string
	bus  events.EventBus
	cost int

	mu       sync.RWMutex
	agents   map[string]*agentRecord
	services map[string][]*instance

	logger *slog.Logger
}

// Option 节点选项
type Option func(*LocalNode)

// WithBcryptCost 设置口令哈希强度（测试使用 bcrypt.MinCost）
func WithBcryptCost(cost int) Option {
	return func(n *LocalNode) { n.cost = cost }
}

// NewLocalNode 创建节点，id 为空时生成
func NewLocalNode(id string, bus events.EventBus, opts ...Option) *LocalNode {
	if id == "" {
		id = uuid.New().String()
	}
	n := &LocalNode{
		id:       id,
		bus:      bus,
		cost:     bcrypt.DefaultCost,
		agents:   make(map[string]*agentRecord),
		services: make(map[string][]*instance),
		logger:   log.NewModuleLogger("node", "local"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NodeID 节点标识
func (n *LocalNode) NodeID() string {
	return n.id
}

// ObserverNotice 发布到观察者总线
func (n *LocalNode) ObserverNotice(event *events.ConnectorEvent) {
	if n.bus == nil || event == nil {
		return
	}
	n.bus.Publish(event)
}

// StoreAgent 存储用户 agent，口令以 bcrypt 哈希保存
func (n *LocalNode) StoreAgent(id, name, passphrase string) error {
	if id == "" {
		return fmt.Errorf("agent id is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), n.cost)
	if err != nil {
		return fmt.Errorf("failed to hash passphrase for %s: %w", id, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.agents[id] = &agentRecord{
		agent: connector.Agent{ID: id, Name: name},
		hash:  hash,
	}
	n.logger.Debug("Agent stored", "agent_id", id)
	return nil
}

// UnlockAgent 用口令解锁 agent
// 服务 agent 没有口令，无法通过连接器解锁
func (n *LocalNode) UnlockAgent(_ context.Context, agentID, passphrase string) (*connector.Agent, error) {
	n.mu.RLock()
	rec, ok := n.agents[agentID]
	n.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", connector.ErrAgentNotKnown, agentID)
	}
	if rec.hash == nil {
		return nil, fmt.Errorf("%w: %s cannot be unlocked", connector.ErrAuthenticationFailed, agentID)
	}
	if err := bcrypt.CompareHashAndPassword(rec.hash, []byte(passphrase)); err != nil {
		return nil, fmt.Errorf("%w: %s", connector.ErrAuthenticationFailed, agentID)
	}

	agent := rec.agent
	return &agent, nil
}

// GetAgent 查询 agent
func (n *LocalNode) GetAgent(_ context.Context, agentID string) (*connector.Agent, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	rec, ok := n.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", connector.ErrAgentNotKnown, agentID)
	}
	agent := rec.agent
	return &agent, nil
}

// Agents 所有已知 agent，按 ID 排序
func (n *LocalNode) Agents() []connector.Agent {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]connector.Agent, 0, len(n.agents))
	for _, rec := range n.agents {
		out = append(out, rec.agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RegisterService 注册本地服务实例，同时登记服务 agent
func (n *LocalNode) RegisterService(svc Service) {
	n.register(svc.Name(), &instance{nodeID: n.id, local: true, methods: svc.Methods()})
}

// RegisterRemote 登记由其他节点托管的服务实例
func (n *LocalNode) RegisterRemote(nodeID string, svc Service) {
	n.register(svc.Name(), &instance{nodeID: nodeID, local: false, methods: svc.Methods()})
}

func (n *LocalNode) register(name string, inst *instance) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.services[name] = append(n.services[name], inst)
	if _, ok := n.agents[name]; !ok {
		n.agents[name] = &agentRecord{agent: connector.Agent{ID: name, Name: name, IsService: true}}
	}
	n.logger.Info("Service registered", "service", name, "node_id", inst.nodeID, "local", inst.local)
}

// ResolveService 解析服务对应的服务 agent
func (n *LocalNode) ResolveService(_ context.Context, service string) (*connector.Agent, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if len(n.services[service]) == 0 {
		return nil, fmt.Errorf("%w: service %s", connector.ErrNotFound, service)
	}
	rec, ok := n.agents[service]
	if !ok {
		return nil, fmt.Errorf("%w: service %s", connector.ErrNotFound, service)
	}
	agent := rec.agent
	return &agent, nil
}

// pick 选择服务实例；preferLocal 时本地实例优先，否则按登记顺序
func (n *LocalNode) pick(service string, preferLocal bool) (*instance, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	instances := n.services[service]
	if len(instances) == 0 {
		return nil, false
	}
	if preferLocal {
		for _, inst := range instances {
			if inst.local {
				return inst, true
			}
		}
	}
	return instances[0], true
}

// Invoke 调用服务方法
// 安全类错误原样返回，其他方法错误包装为 ServiceError
func (n *LocalNode) Invoke(ctx context.Context, inv *connector.Invocation) (result any, err error) {
	if inv == nil || inv.Caller == nil {
		return nil, connector.ErrAccessDenied
	}

	inst, ok := n.pick(inv.Service, inv.PreferLocal)
	if !ok {
		return nil, fmt.Errorf("%w: service %s", connector.ErrNotFound, inv.Service)
	}
	method, ok := inst.methods[inv.Method]
	if !ok {
		return nil, fmt.Errorf("%w: method %s of %s", connector.ErrNotFound, inv.Method, inv.Service)
	}

	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Service method panicked", "service", inv.Service, "method", inv.Method, "panic", r)
			result, err = nil, &connector.ServiceError{Service: inv.Service, Method: inv.Method, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	result, err = method(ctx, inv.Caller, inv.Params)
	if err != nil {
		if connector.IsSecurityError(err) || errors.Is(err, connector.ErrNotFound) {
			return nil, err
		}
		return nil, &connector.ServiceError{Service: inv.Service, Method: inv.Method, Err: err}
	}
	return result, nil
}
