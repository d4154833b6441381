// Package model 定义核心数据模型
//
// task.go 包含 Worker 贡献窗口相关的数据模型定义：
//   - Task：某个 Worker 在 Run 中领取的一段对局
//   - Stats：对局结果计数
package model

import "time"

// ============================================================================
// Stats - 对局结果计数
// ============================================================================

// Stats 对局结果计数（胜/负/和/崩溃/超时负）
//
// Crashes 与 TimeLosses 是附加计数，对应的对局已计入 Wins/Losses/Draws。
type Stats struct {
	Wins       int `json:"wins" bson:"wins"`
	Losses     int `json:"losses" bson:"losses"`
	Draws      int `json:"draws" bson:"draws"`
	Crashes    int `json:"crashes" bson:"crashes"`
	TimeLosses int `json:"time_losses" bson:"time_losses"`
}

// Games 对局总数
func (s Stats) Games() int {
	return s.Wins + s.Losses + s.Draws
}

// Add 逐项相加
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Wins:       s.Wins + o.Wins,
		Losses:     s.Losses + o.Losses,
		Draws:      s.Draws + o.Draws,
		Crashes:    s.Crashes + o.Crashes,
		TimeLosses: s.TimeLosses + o.TimeLosses,
	}
}

// IsNegative 任一计数为负
func (s Stats) IsNegative() bool {
	return s.Wins < 0 || s.Losses < 0 || s.Draws < 0 || s.Crashes < 0 || s.TimeLosses < 0
}

// FitsIn 每项计数和总局数都不超过 limit
//
// 先逐项比较再求和，超大计数不会溢出。
func (s Stats) FitsIn(limit int) bool {
	if s.Wins > limit || s.Losses > limit || s.Draws > limit || s.Crashes > limit || s.TimeLosses > limit {
		return false
	}
	return s.Games() <= limit
}

// ============================================================================
// Task - Worker 贡献窗口
// ============================================================================

// Task 某个 Worker 在 Run 中的一段对局
//
// 标志含义：
//   - Active：Worker 当前持有此 Task，心跳更新有效
//   - Pending：Run 仍在等待此 Task 的贡献（管理员停止/删除或局数完成后置 false）
//
// 状态组合：
//
//	active+pending   → 执行中
//	!active+pending  → 暂停（被回收或 Worker 离开），可被同一 Worker 重新激活
//	!active+!pending → 已归档
type Task struct {
	Index       int       `json:"index" bson:"index"`
	Worker      string    `json:"worker" bson:"worker"`
	NumGames    int       `json:"num_games" bson:"num_games"` // 分配的局数
	Stats       Stats     `json:"stats" bson:"stats"`
	Active      bool      `json:"active" bson:"active"`
	Pending     bool      `json:"pending" bson:"pending"`
	Concurrency int       `json:"concurrency,omitempty" bson:"concurrency,omitempty"`
	NPS         float64   `json:"nps,omitempty" bson:"nps,omitempty"` // 最近一次上报的引擎速度
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	LastUpdated time.Time `json:"last_updated" bson:"last_updated"`
}

// Completed 已完成分配的局数
func (t *Task) Completed() bool {
	return t.Stats.Games() >= t.NumGames
}

// Remaining 尚未上报的局数
func (t *Task) Remaining() int {
	return max(t.NumGames-t.Stats.Games(), 0)
}
