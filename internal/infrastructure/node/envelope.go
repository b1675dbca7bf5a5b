package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nodegate/backend/internal/domain/connector"
)

// EnvelopeServiceName 信封测试服务标识
const EnvelopeServiceName = "nodegate.testing.EnvelopeService"

// errInvalidParams 参数不符合方法签名
var errInvalidParams = errors.New("invalid parameters")

// EnvelopeService 保存一个只有存入者可读取的字符串
type EnvelopeService struct {
	mu      sync.Mutex
	owner   string
	content string
	stored  bool
}

// NewEnvelopeService 创建信封服务
func NewEnvelopeService() *EnvelopeService {
	return &EnvelopeService{}
}

// Name 服务标识
func (s *EnvelopeService) Name() string {
	return EnvelopeServiceName
}

// Methods 方法表
func (s *EnvelopeService) Methods() map[string]Method {
	return map[string]Method{
		"storeEnvelopeString": s.storeEnvelopeString,
		"getEnvelopeString":   s.getEnvelopeString,
	}
}

func (s *EnvelopeService) storeEnvelopeString(_ context.Context, caller *connector.Agent, params []any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("%w: expected 1 parameter, got %d", errInvalidParams, len(params))
	}
	content, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: expected a string", errInvalidParams)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = caller.ID
	s.content = content
	s.stored = true
	return nil, nil
}

func (s *EnvelopeService) getEnvelopeString(_ context.Context, caller *connector.Agent, params []any) (any, error) {
	if len(params) != 0 {
		return nil, fmt.Errorf("%w: expected no parameters, got %d", errInvalidParams, len(params))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stored {
		return nil, fmt.Errorf("%w: no envelope stored", connector.ErrNotFound)
	}
	if s.owner != caller.ID {
		return nil, fmt.Errorf("%w: envelope is not readable by %s", connector.ErrAccessDenied, caller.ID)
	}
	return s.content, nil
}
