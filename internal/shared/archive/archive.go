// Package archive 对局 PGN 归档
//
// Worker 上报结果时可附带 PGN，调度器在释放 Run 锁之后转交给 Sink。
// 归档失败只记录日志，不影响结果合并。
package archive

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Sink PGN 归档目标
type Sink interface {
	StorePGN(ctx context.Context, runID string, taskIndex int, pgn string) error
}

// Lister 支持按 Run 列出已归档对象的 Sink
type Lister interface {
	ListPGN(ctx context.Context, runID string) ([]string, error)
}

// ObjectKey 生成 PGN 对象路径：pgns/{run}/{task:05d}/{unix_nano}.pgn
func ObjectKey(runID string, taskIndex int, at time.Time) string {
	return fmt.Sprintf("pgns/%s/%05d/%d.pgn", runID, taskIndex, at.UnixNano())
}

// Nop 丢弃所有 PGN
type Nop struct{}

func (Nop) StorePGN(context.Context, string, int, string) error { return nil }

// Memory 进程内归档，用于测试
type Memory struct {
	mu      sync.Mutex
	objects map[string]string
}

// NewMemory 创建进程内归档
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]string)}
}

func (m *Memory) StorePGN(_ context.Context, runID string, taskIndex int, pgn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ObjectKey(runID, taskIndex, time.Now())
	for {
		if _, ok := m.objects[key]; !ok {
			break
		}
		key += "~"
	}
	m.objects[key] = pgn
	return nil
}

// Count 已归档对象数
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// ListPGN 按对象路径排序返回某个 Run 的 PGN
func (m *Memory) ListPGN(_ context.Context, runID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := fmt.Sprintf("pgns/%s/", runID)
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
