package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"match-admin/internal/shared/actionlog"
	"match-admin/internal/shared/model"
	"match-admin/internal/shared/stats"
	"match-admin/internal/shared/storage"
)

// ModifyRequest modify_run 的可修改字段，nil 表示不修改
type ModifyRequest struct {
	TargetGames *int    `json:"target_games,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	Throughput  *int    `json:"throughput,omitempty"`
	Info        *string `json:"info,omitempty"`
}

// NewRun 创建 Run（零个 Task，状态 pending）
func (s *Scheduler) NewRun(ctx context.Context, actor string, args model.RunArgs) (*model.Run, error) {
	if args.Owner == "" {
		args.Owner = actor
	}
	if err := model.ValidateArgs(&args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	now := s.now()
	run := &model.Run{
		ID:          uuid.NewString(),
		Args:        args,
		Tasks:       []model.Task{},
		Status:      model.StatusSet{model.RunStatusPending},
		CreatedAt:   now,
		LastUpdated: now,
	}
	sum := stats.Summarize(run.Args, run.Tasks)
	run.SPRT, run.Elo = sum.SPRT, sum.Elo

	if err := s.buffer.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	s.record(ctx, model.ActionNewRun, actor, run.ID, nil, run)
	return run.Clone(), nil
}

// StopRun 停止 Run，幂等
func (s *Scheduler) StopRun(ctx context.Context, actor, id string) (*model.Run, error) {
	return s.adminMutate(ctx, model.ActionStopRun, actor, id, func(run *model.Run) (bool, error) {
		if run.IsFinished() {
			return false, nil
		}
		finishRun(run, s.now())
		return true, nil
	})
}

// DeleteRun 删除 Run（标记 finished + deleted，文档保留），幂等
func (s *Scheduler) DeleteRun(ctx context.Context, actor, id string) (*model.Run, error) {
	return s.adminMutate(ctx, model.ActionDeleteRun, actor, id, func(run *model.Run) (bool, error) {
		if run.Status.Has(model.RunStatusDeleted) {
			return false, nil
		}
		finishRun(run, s.now())
		run.Status = run.Status.With(model.RunStatusDeleted)
		return true, nil
	})
}

// ApproveRun 审批 Run，幂等
func (s *Scheduler) ApproveRun(ctx context.Context, actor, id string) (*model.Run, error) {
	return s.adminMutate(ctx, model.ActionApproveRun, actor, id, func(run *model.Run) (bool, error) {
		if run.Status.Has(model.RunStatusDeleted) {
			return false, fmt.Errorf("%w: run %s is deleted", ErrInvalidRequest, run.ID)
		}
		if run.Status.Has(model.RunStatusApproved) {
			return false, nil
		}
		run.Status = run.Status.With(model.RunStatusApproved).Without(model.RunStatusPending)
		run.LastUpdated = s.now()
		return true, nil
	})
}

// ModifyRun 修改 Run 参数
//
// 暂停的 Task 被关闭并收回未执行的局数，活跃 Task 不受影响。
// 新的目标局数不能低于收回后仍已分配的局数；已结束的 Run 不会被重新打开。
func (s *Scheduler) ModifyRun(ctx context.Context, actor, id string, req ModifyRequest) (*model.Run, error) {
	if req.TargetGames != nil && *req.TargetGames <= 0 {
		return nil, fmt.Errorf("%w: target_games must be positive", ErrInvalidRequest)
	}
	if req.Throughput != nil && *req.Throughput < 0 {
		return nil, fmt.Errorf("%w: throughput must not be negative", ErrInvalidRequest)
	}

	return s.adminMutate(ctx, model.ActionModifyRun, actor, id, func(run *model.Run) (bool, error) {
		if run.Status.Has(model.RunStatusDeleted) {
			return false, fmt.Errorf("%w: run %s is deleted", ErrInvalidRequest, run.ID)
		}
		now := s.now()
		releaseRemainders(run)

		if req.TargetGames != nil {
			if allocated := run.AllocatedGames(); *req.TargetGames < allocated {
				return false, fmt.Errorf("%w: target_games %d below %d games already allocated",
					ErrInvalidRequest, *req.TargetGames, allocated)
			}
			run.Args.TargetGames = *req.TargetGames
		}
		if req.Priority != nil {
			run.Args.Priority = *req.Priority
		}
		if req.Throughput != nil {
			run.Args.Throughput = *req.Throughput
		}
		if req.Info != nil {
			run.Args.Info = *req.Info
		}

		if !run.IsFinished() && run.Args.SPRT == nil && run.Results.Games() >= run.Args.TargetGames {
			finishRun(run, now)
		}
		run.LastUpdated = now
		return true, nil
	})
}

// GetRun 返回 Run 最新快照
func (s *Scheduler) GetRun(ctx context.Context, id string) (*model.Run, error) {
	return s.buffer.Get(ctx, id)
}

// ListRuns 返回满足条件的 Run 快照
func (s *Scheduler) ListRuns(ctx context.Context, filter storage.RunFilter) ([]*model.Run, error) {
	return s.buffer.List(ctx, filter)
}

// adminMutate 管理操作公共流程：临界区内修改，临界区外写审计记录
func (s *Scheduler) adminMutate(ctx context.Context, kind model.ActionKind, actor, id string, fn func(*model.Run) (bool, error)) (*model.Run, error) {
	var (
		before  *model.Run
		changed bool
	)
	after, err := s.buffer.Mutate(ctx, id, func(run *model.Run) (bool, error) {
		before = run.Clone()
		var err error
		changed, err = fn(run)
		return changed, err
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidRequest) {
			s.logger.WithRunID(id).WithError(err).Error("[scheduler.admin.failed]", "kind", kind, "actor", actor)
		}
		return nil, err
	}

	if changed {
		if !before.IsFinished() && after.IsFinished() {
			s.metrics.RunsFinished.WithLabelValues(finishReason(kind)).Inc()
		}
		s.record(ctx, kind, actor, id, before, after)
	}
	return after, nil
}

func finishReason(kind model.ActionKind) string {
	switch kind {
	case model.ActionDeleteRun:
		return "deleted"
	case model.ActionModifyRun:
		return "games"
	}
	return "stopped"
}

// record 写审计记录，失败不影响操作本身
func (s *Scheduler) record(ctx context.Context, kind model.ActionKind, actor, runID string, before, after *model.Run) {
	s.metrics.AdminActions.WithLabelValues(string(kind)).Inc()
	s.actions.Record(ctx, actionlog.New(kind, actor, runID, before, after))
}
