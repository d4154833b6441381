package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"match-admin/internal/shared/model"
	"match-admin/internal/shared/storage"
)

// Capabilities Worker 请求任务时声明的能力
type Capabilities struct {
	Concurrency int `json:"concurrency"` // 可用于对局的核心数
	MaxTasks    int `json:"max_tasks"`   // 同时持有的活跃 Task 上限，0 使用配置值
}

// Assignment request_task 的结果
//
// NoWork=true 时其余字段为空，这不是错误：所有 Run 暂时都没有可分配的局数。
type Assignment struct {
	NoWork    bool           `json:"no_work,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	TaskIndex int            `json:"task_index"`
	NumGames  int            `json:"num_games,omitempty"`
	Resumed   bool           `json:"resumed,omitempty"` // 重新激活了此前暂停的 Task
	Played    int            `json:"played,omitempty"`  // 重新激活时已完成的局数
	Args      *model.RunArgs `json:"args,omitempty"`
}

var noWork = &Assignment{NoWork: true}

// RequestTask 为 Worker 分配一段对局
//
// 流程：
//  1. 封禁检查（先于任何 Run 状态读取）
//  2. 检查 Worker 跨 Run 的活跃 Task 数上限
//  3. 按策略链排序候选 Run，依次在 per-run 临界区内尝试分配
func (s *Scheduler) RequestTask(ctx context.Context, worker string, caps Capabilities) (*Assignment, error) {
	if worker == "" {
		return nil, fmt.Errorf("%w: worker identity is required", ErrInvalidRequest)
	}
	if caps.Concurrency < 0 || caps.MaxTasks < 0 {
		return nil, fmt.Errorf("%w: negative capabilities", ErrInvalidRequest)
	}
	caps.Concurrency = max(caps.Concurrency, 1)
	if caps.MaxTasks == 0 {
		caps.MaxTasks = s.config.MaxTasksPerWorker
	}

	blocked, err := s.registry.IsBlocked(ctx, worker)
	if err != nil {
		return nil, fmt.Errorf("check worker %s: %w", worker, err)
	}
	if blocked {
		s.metrics.Blocked.Inc()
		s.logger.WithWorker(worker).Warn("[scheduler.request.blocked]")
		return nil, ErrWorkerBlocked
	}

	runs, err := s.buffer.List(ctx, storage.RunFilter{})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	active := 0
	cands := make([]*Candidate, 0, len(runs))
	for _, run := range runs {
		if run.ActiveTaskFor(worker) >= 0 {
			active++
			continue
		}
		if !s.assignable(run) {
			continue
		}
		resumable := resumableTask(run, worker) >= 0
		if !resumable && run.RemainingCapacity() == 0 && !hasReleasable(run) {
			continue
		}
		cands = append(cands, &Candidate{Run: run, Worker: worker, Resumable: resumable})
	}
	if active >= caps.MaxTasks {
		s.metrics.NoWork.Inc()
		s.logger.WithWorker(worker).Debug("[scheduler.request.limit]", "active", active, "max_tasks", caps.MaxTasks)
		return noWork, nil
	}

	s.chain.Sort(cands)
	for _, c := range cands {
		var a *Assignment
		_, err := s.buffer.Mutate(ctx, c.Run.ID, func(run *model.Run) (bool, error) {
			a = s.assign(run, worker, caps, s.now())
			return a != nil, nil
		})
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("assign run %s: %w", c.Run.ID, err)
		}
		if a == nil {
			continue
		}

		kind := "new"
		if a.Resumed {
			kind = "resumed"
		} else {
			s.metrics.ChunkSize.Observe(float64(a.NumGames))
		}
		s.metrics.Assignments.WithLabelValues(kind).Inc()
		s.logger.TaskLog("assigned", a.RunID, a.TaskIndex, worker, "num_games", a.NumGames, "resumed", a.Resumed)
		return a, nil
	}

	s.metrics.NoWork.Inc()
	return noWork, nil
}

// assignable Run 当前是否接受新的分配
func (s *Scheduler) assignable(run *model.Run) bool {
	if run.IsFinished() {
		return false
	}
	if s.config.RequireApproval && !run.Status.Has(model.RunStatusApproved) {
		return false
	}
	return true
}

// assign 在临界区内重新检查状态并分配，无法分配时返回 nil
func (s *Scheduler) assign(run *model.Run, worker string, caps Capabilities, now time.Time) *Assignment {
	if !s.assignable(run) || run.ActiveTaskFor(worker) >= 0 {
		return nil
	}

	if idx := resumableTask(run, worker); idx >= 0 {
		t := &run.Tasks[idx]
		t.Active = true
		t.Concurrency = caps.Concurrency
		t.LastUpdated = now
		markAssigned(run, now)
		return s.assignment(run, t, true)
	}

	capacity := run.RemainingCapacity()
	if capacity == 0 {
		capacity = releaseRemainders(run)
	}
	games := s.chunkSize(run.Args, caps.Concurrency, capacity)
	if games <= 0 {
		return nil
	}

	run.Tasks = append(run.Tasks, model.Task{
		Index:       len(run.Tasks),
		Worker:      worker,
		NumGames:    games,
		Active:      true,
		Pending:     true,
		Concurrency: caps.Concurrency,
		CreatedAt:   now,
		LastUpdated: now,
	})
	markAssigned(run, now)
	return s.assignment(run, &run.Tasks[len(run.Tasks)-1], false)
}

func (s *Scheduler) assignment(run *model.Run, t *model.Task, resumed bool) *Assignment {
	args := run.Args
	if run.Args.SPRT != nil {
		p := *run.Args.SPRT
		args.SPRT = &p
	}
	return &Assignment{
		RunID:     run.ID,
		TaskIndex: t.Index,
		NumGames:  t.NumGames,
		Resumed:   resumed,
		Played:    t.Stats.Games(),
		Args:      &args,
	}
}

func markAssigned(run *model.Run, now time.Time) {
	run.Status = run.Status.With(model.RunStatusActive).Without(model.RunStatusPending)
	run.LastUpdated = now
}

// resumableTask Worker 在该 Run 中暂停且未完成的 Task 下标，不存在返回 -1
func resumableTask(run *model.Run, worker string) int {
	for i := range run.Tasks {
		t := &run.Tasks[i]
		if t.Worker == worker && !t.Active && t.Pending && !t.Completed() {
			return i
		}
	}
	return -1
}

func hasReleasable(run *model.Run) bool {
	for i := range run.Tasks {
		t := &run.Tasks[i]
		if !t.Active && t.Stats.Games() < t.NumGames {
			return true
		}
	}
	return false
}

// releaseRemainders 收回暂停 Task 中未执行的局数，统计保持不变，返回新的剩余容量
func releaseRemainders(run *model.Run) int {
	for i := range run.Tasks {
		t := &run.Tasks[i]
		if t.Active {
			continue
		}
		if played := t.Stats.Games(); played < t.NumGames {
			t.NumGames = played
			t.Pending = false
		}
	}
	return run.RemainingCapacity()
}
