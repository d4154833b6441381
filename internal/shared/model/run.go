// Package model 定义核心数据模型
//
// run.go 包含对局测试相关的数据模型定义：
//   - Run：一次 A/B 对比测试（新旧两个引擎版本的对局实验）
//   - RunArgs：测试参数（时间控制、引擎版本、目标局数、SPRT 边界等）
//   - RunStatus / StatusSet：测试状态集合
//   - SPRTState / EloEstimate：统计结果（由 stats 包计算）
package model

import (
	"slices"
	"time"
)

// ============================================================================
// RunStatus - 测试状态
// ============================================================================

// RunStatus 表示 Run 的一个状态标志
//
// 与单值状态机不同，Run 的状态是一组相互独立的标志：
//   - pending：已创建，尚未有 Worker 领取任务
//   - active：至少分配过一个 Task
//   - approved：已被管理员审批
//   - finished：已结束（SPRT 判定、局数达标或管理员停止）
//   - deleted：已被管理员删除（同时也是 finished）
type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusActive   RunStatus = "active"
	RunStatusFinished RunStatus = "finished"
	RunStatusDeleted  RunStatus = "deleted"
	RunStatusApproved RunStatus = "approved"
)

// IsValid 检查状态标志是否合法
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusActive, RunStatusFinished, RunStatusDeleted, RunStatusApproved:
		return true
	}
	return false
}

// StatusSet Run 的状态集合（有序、去重）
type StatusSet []RunStatus

// Has 是否包含指定状态
func (s StatusSet) Has(status RunStatus) bool {
	return slices.Contains(s, status)
}

// With 返回加入指定状态后的新集合
func (s StatusSet) With(status RunStatus) StatusSet {
	if s.Has(status) {
		return s
	}
	out := make(StatusSet, 0, len(s)+1)
	out = append(out, s...)
	return append(out, status)
}

// Without 返回移除指定状态后的新集合
func (s StatusSet) Without(status RunStatus) StatusSet {
	out := make(StatusSet, 0, len(s))
	for _, st := range s {
		if st != status {
			out = append(out, st)
		}
	}
	return out
}

// ============================================================================
// RunArgs - 测试参数
// ============================================================================

// SPRTParams SPRT 假设检验参数
//
// H0: elo <= Elo0（无提升），H1: elo >= Elo1（新版本更强）
type SPRTParams struct {
	Elo0  float64 `json:"elo0" bson:"elo0"`
	Elo1  float64 `json:"elo1" bson:"elo1"`
	Alpha float64 `json:"alpha" bson:"alpha"`
	Beta  float64 `json:"beta" bson:"beta"`
}

// RunArgs 测试参数，创建后只能通过 ModifyRun 修改
type RunArgs struct {
	TC          string      `json:"tc" bson:"tc"`                                         // 时间控制，如 "10+0.1"
	NewTag      string      `json:"new_tag" bson:"new_tag"`                               // 新版本标识
	BaseTag     string      `json:"base_tag" bson:"base_tag"`                             // 基准版本标识
	NewOptions  string      `json:"new_options,omitempty" bson:"new_options,omitempty"`   // 新版本引擎选项
	BaseOptions string      `json:"base_options,omitempty" bson:"base_options,omitempty"` // 基准版本引擎选项
	TargetGames int         `json:"target_games" bson:"target_games"`                     // 目标总局数
	Book        string      `json:"book,omitempty" bson:"book,omitempty"`
	BookDepth   int         `json:"book_depth,omitempty" bson:"book_depth,omitempty"`
	Threads     int         `json:"threads,omitempty" bson:"threads,omitempty"` // 每个引擎使用的线程数
	Priority    int         `json:"priority" bson:"priority"`
	Throughput  int         `json:"throughput,omitempty" bson:"throughput,omitempty"`
	Owner       string      `json:"owner" bson:"owner"`
	Info        string      `json:"info,omitempty" bson:"info,omitempty"`
	SPRT        *SPRTParams `json:"sprt,omitempty" bson:"sprt,omitempty"` // 为空表示固定局数测试
}

// ============================================================================
// 统计结果
// ============================================================================

// Hypothesis SPRT 接受的假设
type Hypothesis string

const (
	HypothesisNone Hypothesis = "none"
	HypothesisH0   Hypothesis = "H0"
	HypothesisH1   Hypothesis = "H1"
)

// SPRTState SPRT 运行状态，可仅由累计结果重新计算
type SPRTState struct {
	LLR      float64    `json:"llr" bson:"llr"`
	Lower    float64    `json:"lower" bson:"lower"`
	Upper    float64    `json:"upper" bson:"upper"`
	Finished bool       `json:"finished" bson:"finished"`
	Accepted Hypothesis `json:"accepted" bson:"accepted"`
}

// EloEstimate Elo 点估计（仅用于展示，不参与停止判定）
type EloEstimate struct {
	Elo    float64 `json:"elo" bson:"elo"`
	CILow  float64 `json:"ci_low" bson:"ci_low"`
	CIHigh float64 `json:"ci_high" bson:"ci_high"`
	LOS    float64 `json:"los" bson:"los"`
	Games  int     `json:"games" bson:"games"`
}

// ============================================================================
// Run - 对局测试
// ============================================================================

// Run 表示一次 A/B 对比测试
//
// Tasks 只追加不删除：Task 结束后只清除 active/pending 标志，保留统计用于审计。
// Results 始终等于所有 Task.Stats 之和，只能由 stats 包重新计算，不允许直接修改。
type Run struct {
	ID          string       `json:"id" bson:"_id"`
	Args        RunArgs      `json:"args" bson:"args"`
	Tasks       []Task       `json:"tasks" bson:"tasks"`
	Results     Stats        `json:"results" bson:"results"`
	SPRT        *SPRTState   `json:"sprt,omitempty" bson:"sprt,omitempty"`
	Elo         *EloEstimate `json:"elo,omitempty" bson:"elo,omitempty"`
	Status      StatusSet    `json:"status" bson:"status"`
	CreatedAt   time.Time    `json:"created_at" bson:"created_at"`
	LastUpdated time.Time    `json:"last_updated" bson:"last_updated"`
}

// IsFinished Run 已结束（包括已删除）
func (r *Run) IsFinished() bool {
	return r.Status.Has(RunStatusFinished) || r.Status.Has(RunStatusDeleted)
}

// AllocatedGames 已分配给各 Task 的局数总和
func (r *Run) AllocatedGames() int {
	total := 0
	for i := range r.Tasks {
		total += r.Tasks[i].NumGames
	}
	return total
}

// RemainingCapacity 尚可分配的局数
func (r *Run) RemainingCapacity() int {
	remaining := r.Args.TargetGames - r.AllocatedGames()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ActiveTaskFor 返回指定 Worker 在该 Run 中的活跃 Task 下标，不存在返回 -1
func (r *Run) ActiveTaskFor(worker string) int {
	for i := range r.Tasks {
		if r.Tasks[i].Active && r.Tasks[i].Worker == worker {
			return i
		}
	}
	return -1
}

// Clone 深拷贝，用于在锁外传递快照
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	out := *r
	out.Tasks = slices.Clone(r.Tasks)
	out.Status = slices.Clone(r.Status)
	if r.Args.SPRT != nil {
		sprt := *r.Args.SPRT
		out.Args.SPRT = &sprt
	}
	if r.SPRT != nil {
		state := *r.SPRT
		out.SPRT = &state
	}
	if r.Elo != nil {
		elo := *r.Elo
		out.Elo = &elo
	}
	return &out
}
