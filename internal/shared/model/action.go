// Package model 定义核心数据模型
//
// action.go 包含管理操作审计相关的数据模型定义：
//   - Action：一次管理操作（新建、修改、停止、删除、审批）的审计记录
//   - RunSummary：操作前后 Run 的摘要
package model

import "time"

// ActionKind 管理操作类型
type ActionKind string

const (
	ActionNewRun     ActionKind = "new_run"
	ActionModifyRun  ActionKind = "modify_run"
	ActionStopRun    ActionKind = "stop_run"
	ActionDeleteRun  ActionKind = "delete_run"
	ActionApproveRun ActionKind = "approve_run"
)

// RunSummary Run 的审计摘要，不含 Task 列表
type RunSummary struct {
	Args    RunArgs   `json:"args" bson:"args"`
	Status  StatusSet `json:"status" bson:"status"`
	Results Stats     `json:"results" bson:"results"`
}

// Summarize 生成审计摘要，run 为 nil 时返回 nil
func (r *Run) Summarize() *RunSummary {
	if r == nil {
		return nil
	}
	c := r.Clone()
	return &RunSummary{Args: c.Args, Status: c.Status, Results: c.Results}
}

// Action 管理操作审计记录
type Action struct {
	ID        string      `json:"id" bson:"_id"`
	Kind      ActionKind  `json:"kind" bson:"kind"`
	Actor     string      `json:"actor" bson:"actor"`
	RunID     string      `json:"run_id" bson:"run_id"`
	Before    *RunSummary `json:"before,omitempty" bson:"before,omitempty"`
	After     *RunSummary `json:"after,omitempty" bson:"after,omitempty"`
	CreatedAt time.Time   `json:"created_at" bson:"created_at"`
}
