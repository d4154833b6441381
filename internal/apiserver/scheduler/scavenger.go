package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"match-admin/internal/shared/model"
	"match-admin/internal/shared/storage"
)

// ScavengeStaleTasks 回收超过 timeout 没有心跳的活跃 Task
//
// 只清除 active 标志，统计和 pending 保持不变，同一 Worker 之后可以重新激活。
// 单个 Run 失败只记录日志并跳过，不中断整轮扫描。返回被回收的 Task 数。
func (s *Scheduler) ScavengeStaleTasks(ctx context.Context, timeout time.Duration) (int, error) {
	runs, err := s.buffer.List(ctx, storage.RunFilter{})
	if err != nil {
		return 0, fmt.Errorf("list runs: %w", err)
	}

	total := 0
	for _, snapshot := range runs {
		if !hasStale(snapshot, s.now(), timeout) {
			continue
		}

		type reclaimed struct {
			index  int
			worker string
		}
		var tasks []reclaimed
		_, err := s.buffer.Mutate(ctx, snapshot.ID, func(run *model.Run) (bool, error) {
			tasks = tasks[:0]
			now := s.now()
			for i := range run.Tasks {
				t := &run.Tasks[i]
				if t.Active && now.Sub(t.LastUpdated) > timeout {
					t.Active = false
					tasks = append(tasks, reclaimed{index: t.Index, worker: t.Worker})
				}
			}
			return len(tasks) > 0, nil
		})
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				s.logger.WithRunID(snapshot.ID).WithError(err).Warn("[scheduler.scavenge.failed]")
			}
			continue
		}

		for _, t := range tasks {
			s.logger.TaskLog("scavenged", snapshot.ID, t.index, t.worker)
		}
		total += len(tasks)
	}

	if total > 0 {
		s.metrics.Scavenged.Add(float64(total))
		s.logger.Info("[scheduler.scavenge.done]", "reclaimed", total, "runs", len(runs))
	}
	return total, nil
}

func hasStale(run *model.Run, now time.Time, timeout time.Duration) bool {
	for i := range run.Tasks {
		if run.Tasks[i].Active && now.Sub(run.Tasks[i].LastUpdated) > timeout {
			return true
		}
	}
	return false
}

// RunScavenger 按 ScavengeInterval 周期执行回收，ctx 取消时返回
func (s *Scheduler) RunScavenger(ctx context.Context) error {
	ticker := time.NewTicker(s.config.ScavengeInterval)
	defer ticker.Stop()

	s.logger.Info("[scheduler.scavenger.start]",
		"interval", s.config.ScavengeInterval, "stale_timeout", s.config.StaleTimeout)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("[scheduler.scavenger.stop]", "reason", "context_cancelled")
			return nil
		case <-ticker.C:
		}
		if _, err := s.ScavengeStaleTasks(ctx, s.config.StaleTimeout); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Warn("[scheduler.scavenge.failed]")
		}
	}
}
