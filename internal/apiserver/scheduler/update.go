package scheduler

import (
	"context"
	"fmt"
	"time"

	"match-admin/internal/shared/model"
	"match-admin/internal/shared/stats"
)

// UpdateRequest update_task 的参数
type UpdateRequest struct {
	RunID     string      `json:"run_id"`
	TaskIndex int         `json:"task_index"`
	Worker    string      `json:"worker,omitempty"` // 非空时必须与 Task 持有者一致
	Stats     model.Stats `json:"stats"`            // 自上次上报以来的增量
	NPS       float64     `json:"nps,omitempty"`
	PGN       string      `json:"pgn,omitempty"`
}

// UpdateResult update_task 的结果
//
// TaskAlive=false 是 Worker 停止当前 Task 的唯一信号，不是错误。
type UpdateResult struct {
	TaskAlive bool `json:"task_alive"`
}

type updateOutcome string

const (
	outcomeAlive     updateOutcome = "alive"
	outcomeStale     updateOutcome = "stale"
	outcomeRejected  updateOutcome = "rejected"
	outcomeCompleted updateOutcome = "completed"
	outcomeFinished  updateOutcome = "finished"
)

// UpdateTask 合并 Worker 上报的增量结果
//
// Task 已失效（被回收、被停止、Run 已结束或持有者不符）时返回 TaskAlive=false；
// 增量超过 Task 剩余局数时不合并，Task 直接归档并返回 TaskAlive=false；
// 合并后由 stats 包重算 results/sprt/elo，SPRT 判定或固定局数达标时结束 Run。
func (s *Scheduler) UpdateTask(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	if req.Stats.IsNegative() || req.NPS < 0 {
		return nil, fmt.Errorf("%w: negative counts in update", ErrInvalidRequest)
	}

	var (
		outcome updateOutcome
		reason  string
	)
	_, err := s.buffer.Mutate(ctx, req.RunID, func(run *model.Run) (bool, error) {
		outcome, reason = "", ""
		if req.TaskIndex < 0 || req.TaskIndex >= len(run.Tasks) {
			return false, fmt.Errorf("run %s task %d: %w", run.ID, req.TaskIndex, ErrNotFound)
		}
		t := &run.Tasks[req.TaskIndex]
		if run.IsFinished() || !t.Active || (req.Worker != "" && req.Worker != t.Worker) {
			outcome = outcomeStale
			return false, nil
		}

		now := s.now()
		if !req.Stats.FitsIn(t.Remaining()) {
			t.Active = false
			t.Pending = false
			t.LastUpdated = now
			run.LastUpdated = now
			outcome = outcomeRejected
			return true, nil
		}

		t.Stats = t.Stats.Add(req.Stats)
		t.LastUpdated = now
		if req.NPS > 0 {
			t.NPS = req.NPS
		}
		run.LastUpdated = now

		sum := stats.Summarize(run.Args, run.Tasks)
		run.Results = sum.Results
		run.SPRT = sum.SPRT
		run.Elo = sum.Elo

		switch {
		case sum.Decision != stats.Continue:
			reason = sum.Decision.String()
			finishRun(run, now)
			outcome = outcomeFinished
		case run.Args.SPRT == nil && run.Results.Games() >= run.Args.TargetGames:
			reason = "games"
			finishRun(run, now)
			outcome = outcomeFinished
		case t.Completed():
			t.Active = false
			t.Pending = false
			outcome = outcomeCompleted
		default:
			outcome = outcomeAlive
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Updates.WithLabelValues(string(outcome)).Inc()
	switch outcome {
	case outcomeStale:
		s.logger.TaskLog("stale_update", req.RunID, req.TaskIndex, req.Worker)
	case outcomeRejected:
		s.logger.WithRunID(req.RunID).WithWorker(req.Worker).Warn("[scheduler.update.rejected]",
			"task_index", req.TaskIndex, "reported", req.Stats.Games())
	case outcomeFinished:
		s.metrics.RunsFinished.WithLabelValues(reason).Inc()
		s.logger.WithRunID(req.RunID).Info("[scheduler.run.finished]", "reason", reason)
	case outcomeCompleted:
		s.logger.TaskLog("completed", req.RunID, req.TaskIndex, req.Worker)
	}

	if req.PGN != "" && outcome != outcomeStale && outcome != outcomeRejected {
		s.storePGN(ctx, req.RunID, req.TaskIndex, req.PGN)
	}
	return &UpdateResult{TaskAlive: outcome == outcomeAlive}, nil
}

// storePGN 转发对局记录到归档，失败只记录日志
func (s *Scheduler) storePGN(ctx context.Context, runID string, taskIndex int, pgn string) {
	if err := s.archive.StorePGN(ctx, runID, taskIndex, pgn); err != nil {
		s.logger.WithRunID(runID).WithError(err).Warn("[scheduler.pgn.failed]", "task_index", taskIndex, "bytes", len(pgn))
	}
}

// finishRun 结束 Run：加入 finished 标志，所有 Task 停止并归档
func finishRun(run *model.Run, now time.Time) {
	run.Status = run.Status.With(model.RunStatusFinished).Without(model.RunStatusPending)
	for i := range run.Tasks {
		run.Tasks[i].Active = false
		run.Tasks[i].Pending = false
	}
	run.LastUpdated = now
}
