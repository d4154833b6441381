// Package actionlog 管理操作审计
//
// Record 不返回错误：审计失败只记录日志，不影响管理操作本身。
package actionlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"match-admin/internal/shared/model"
	"match-admin/internal/shared/storage"
	"match-admin/pkg/logging"
)

// Recorder 审计记录器
type Recorder interface {
	Record(ctx context.Context, action model.Action)
}

// New 构造审计记录，补全 ID 和时间
func New(kind model.ActionKind, actor, runID string, before, after *model.Run) model.Action {
	return model.Action{
		ID:        uuid.NewString(),
		Kind:      kind,
		Actor:     actor,
		RunID:     runID,
		Before:    before.Summarize(),
		After:     after.Summarize(),
		CreatedAt: time.Now().UTC(),
	}
}

// LogRecorder 只写日志
type LogRecorder struct {
	logger *logging.Logger
}

// NewLogRecorder 创建日志审计记录器
func NewLogRecorder(logger *logging.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(ctx context.Context, a model.Action) {
	r.logger.WithContext(ctx).Info("[actionlog.record]",
		"kind", a.Kind, "actor", a.Actor, "run_id", a.RunID, "action_id", a.ID)
}

// StoreRecorder 写入持久化存储，失败时退化为日志
type StoreRecorder struct {
	store   storage.ActionStore
	logger  *logging.Logger
	timeout time.Duration
}

// NewStoreRecorder 创建存储审计记录器
func NewStoreRecorder(store storage.ActionStore, logger *logging.Logger) *StoreRecorder {
	return &StoreRecorder{store: store, logger: logger, timeout: 5 * time.Second}
}

func (r *StoreRecorder) Record(ctx context.Context, a model.Action) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := r.store.InsertAction(ctx, &a); err != nil {
		r.logger.WithError(err).Warn("[actionlog.record_failed]",
			"kind", a.Kind, "actor", a.Actor, "run_id", a.RunID)
	}
}

// Multi 依次调用多个记录器
type Multi []Recorder

func (m Multi) Record(ctx context.Context, a model.Action) {
	for _, r := range m {
		r.Record(ctx, a)
	}
}

// Nop 丢弃所有审计记录
type Nop struct{}

func (Nop) Record(context.Context, model.Action) {}
