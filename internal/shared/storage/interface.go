// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：mongostore/, sqlstore/, memstore/
//   - 初始化时通过依赖注入传入实现
//
// 存储只保证单文档原子性：Run 及其全部 Task 作为一个文档整体读写，
// 跨文档的一致性由上层的 WriteBuffer 和 per-run 锁保证。
package storage

import (
	"context"
	"fmt"
	"time"

	"match-admin/internal/shared/model"
)

// RunFilter Run 查询条件
type RunFilter struct {
	IncludeFinished bool   // 默认只返回未结束的 Run
	Owner           string // 为空表示不限
	Limit           int    // <= 0 表示不限
}

// Match 判断 Run 是否满足条件，供不支持下推查询的实现使用
func (f RunFilter) Match(run *model.Run) bool {
	if !f.IncludeFinished && run.IsFinished() {
		return false
	}
	if f.Owner != "" && run.Args.Owner != f.Owner {
		return false
	}
	return true
}

// RunStore Run 文档存储
//
// 所有实现在读写边界调用 model.ValidateRun，违反约束时返回 ErrSchemaViolation。
// FindRuns 按 created_at 升序返回。
type RunStore interface {
	GetRun(ctx context.Context, id string) (*model.Run, error)
	FindRuns(ctx context.Context, filter RunFilter) ([]*model.Run, error)
	ReplaceRun(ctx context.Context, run *model.Run) error
	InsertRun(ctx context.Context, run *model.Run) error
}

// ActionStore 管理操作审计记录存储
type ActionStore interface {
	InsertAction(ctx context.Context, action *model.Action) error
	ListActions(ctx context.Context, runID string, limit int) ([]*model.Action, error)
}

// PersistentStore 同时提供 Run 与审计记录存储的完整驱动
type PersistentStore interface {
	RunStore
	ActionStore
	Close() error
}

// CheckRun 存储边界校验
func CheckRun(run *model.Run) error {
	if run == nil {
		return fmt.Errorf("%w: nil run", ErrSchemaViolation)
	}
	return model.ValidateRun(run)
}

// NormalizeTimes 统一时间精度为毫秒 UTC，与 MongoDB/JSON 的往返结果保持一致
func NormalizeTimes(run *model.Run) {
	run.CreatedAt = truncate(run.CreatedAt)
	run.LastUpdated = truncate(run.LastUpdated)
	for i := range run.Tasks {
		run.Tasks[i].CreatedAt = truncate(run.Tasks[i].CreatedAt)
		run.Tasks[i].LastUpdated = truncate(run.Tasks[i].LastUpdated)
	}
}

func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
