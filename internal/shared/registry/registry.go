// Package registry Worker 封禁名单
//
// 调度器在分配任务前查询 Worker 是否被封禁。实现：
//   - Static：进程内名单（测试、单机部署）
//   - Redis：集合 SISMEMBER
//   - Etcd：每个被封禁的 Worker 一个 key
package registry

import (
	"context"
	"sync"
)

// Registry Worker 封禁查询
type Registry interface {
	IsBlocked(ctx context.Context, worker string) (bool, error)
}

// Blocklist 可管理的封禁名单
type Blocklist interface {
	Registry
	Block(ctx context.Context, worker string) error
	Unblock(ctx context.Context, worker string) error
}

// Static 进程内封禁名单
type Static struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
}

// NewStatic 创建进程内名单，可传入初始封禁的 Worker
func NewStatic(workers ...string) *Static {
	s := &Static{blocked: make(map[string]struct{}, len(workers))}
	for _, w := range workers {
		s.blocked[w] = struct{}{}
	}
	return s
}

func (s *Static) IsBlocked(_ context.Context, worker string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocked[worker]
	return ok, nil
}

func (s *Static) Block(_ context.Context, worker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[worker] = struct{}{}
	return nil
}

func (s *Static) Unblock(_ context.Context, worker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocked, worker)
	return nil
}

var (
	_ Blocklist = (*Static)(nil)
	_ Blocklist = (*Redis)(nil)
	_ Blocklist = (*Etcd)(nil)
)
