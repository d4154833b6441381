// Package memstore 进程内存储实现，用于测试和 driver: memory
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"

	"match-admin/internal/shared/model"
	"match-admin/internal/shared/storage"
)

// Store 基于 map 的 PersistentStore，读写均深拷贝
type Store struct {
	mu      sync.RWMutex
	runs    map[string]*model.Run
	actions []*model.Action
}

// NewStore 创建内存存储
func NewStore() *Store {
	return &Store{runs: make(map[string]*model.Run)}
}

func (s *Store) GetRun(_ context.Context, id string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return run.Clone(), nil
}

func (s *Store) FindRuns(_ context.Context, filter storage.RunFilter) ([]*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if filter.Match(run) {
			out = append(out, run.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) ReplaceRun(_ context.Context, run *model.Run) error {
	if err := storage.CheckRun(run); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return storage.ErrNotFound
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

func (s *Store) InsertRun(_ context.Context, run *model.Run) error {
	if err := storage.CheckRun(run); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return storage.ErrDuplicate
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

// DeleteRun 直接移除文档，模拟外部归档
func (s *Store) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.runs, id)
	return nil
}

func (s *Store) InsertAction(_ context.Context, action *model.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := *action
	s.actions = append(s.actions, &a)
	return nil
}

// ListActions 按时间倒序返回，runID 为空表示全部
func (s *Store) ListActions(_ context.Context, runID string, limit int) ([]*model.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*model.Action{}
	for _, a := range slices.Backward(s.actions) {
		if runID != "" && a.RunID != runID {
			continue
		}
		c := *a
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Close() error {
	return nil
}

var _ storage.PersistentStore = (*Store)(nil)
