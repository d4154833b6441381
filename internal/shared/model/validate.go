package model

import (
	"errors"
	"fmt"
)

// ErrSchemaViolation 文档不符合 Run 结构约束
//
// 存储层在读写边界调用 ValidateRun，不合法的文档直接失败，不向上传播。
var ErrSchemaViolation = errors.New("schema violation")

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaViolation, fmt.Sprintf(format, args...))
}

// ValidateArgs 校验测试参数
func ValidateArgs(args *RunArgs) error {
	if args.TargetGames <= 0 {
		return violation("target_games must be positive, got %d", args.TargetGames)
	}
	if _, err := ParseTimeControl(args.TC); err != nil {
		return violation("tc: %v", err)
	}
	if args.NewTag == "" || args.BaseTag == "" {
		return violation("new_tag and base_tag are required")
	}
	if args.Threads < 0 || args.BookDepth < 0 || args.Throughput < 0 {
		return violation("threads, book_depth and throughput must not be negative")
	}
	if p := args.SPRT; p != nil {
		if p.Alpha <= 0 || p.Alpha >= 1 || p.Beta <= 0 || p.Beta >= 1 {
			return violation("sprt alpha/beta must be in (0,1), got %v/%v", p.Alpha, p.Beta)
		}
		if p.Elo1 <= p.Elo0 {
			return violation("sprt elo1 (%v) must be greater than elo0 (%v)", p.Elo1, p.Elo0)
		}
	}
	return nil
}

// ValidateRun 校验完整的 Run 文档
func ValidateRun(run *Run) error {
	if run == nil {
		return violation("nil run")
	}
	if run.ID == "" {
		return violation("missing id")
	}
	if err := ValidateArgs(&run.Args); err != nil {
		return fmt.Errorf("run %s: %w", run.ID, err)
	}
	for _, st := range run.Status {
		if !st.IsValid() {
			return violation("run %s: unknown status %q", run.ID, st)
		}
	}

	var sum Stats
	allocated := 0
	for i := range run.Tasks {
		t := &run.Tasks[i]
		if t.Index != i {
			return violation("run %s: task at position %d has index %d", run.ID, i, t.Index)
		}
		if t.Worker == "" {
			return violation("run %s: task %d has no worker", run.ID, i)
		}
		if t.NumGames < 0 || t.Stats.IsNegative() {
			return violation("run %s: task %d has negative counts", run.ID, i)
		}
		sum = sum.Add(t.Stats)
		allocated += t.NumGames
	}
	if allocated > run.Args.TargetGames {
		return violation("run %s: %d games allocated over target %d", run.ID, allocated, run.Args.TargetGames)
	}
	if sum != run.Results {
		return violation("run %s: results %+v differ from task sum %+v", run.ID, run.Results, sum)
	}
	return nil
}
