// Package stats 对局统计计算
//
// 纯函数实现，无 I/O、无共享状态：
//   - Aggregate：汇总各 Task 的结果
//   - SPRT：序贯概率比检验，判断是否可以提前停止测试
//   - EstimateElo：Elo 点估计和置信区间（仅用于展示）
//
// 相同输入必然得到相同输出，结果只依赖累计计数，不需要回放历史。
package stats

import (
	"math"

	"match-admin/internal/shared/model"
)

// Decision SPRT 判定结果
type Decision int

const (
	// Continue 证据不足，继续测试
	Continue Decision = iota
	// AcceptH0 接受 H0：无提升
	AcceptH0
	// AcceptH1 接受 H1：新版本更强
	AcceptH1
)

func (d Decision) String() string {
	switch d {
	case AcceptH0:
		return "H0"
	case AcceptH1:
		return "H1"
	default:
		return "continue"
	}
}

// Hypothesis 转换为模型中的假设标识
func (d Decision) Hypothesis() model.Hypothesis {
	switch d {
	case AcceptH0:
		return model.HypothesisH0
	case AcceptH1:
		return model.HypothesisH1
	default:
		return model.HypothesisNone
	}
}

// Aggregate 逐项汇总所有 Task 的结果
func Aggregate(tasks []model.Task) model.Stats {
	var total model.Stats
	for i := range tasks {
		total = total.Add(tasks[i].Stats)
	}
	return total
}

// SPRT 序贯概率比检验参数
type SPRT struct {
	Elo0  float64
	Elo1  float64
	Alpha float64
	Beta  float64
}

// FromParams 从 Run 参数构造
func FromParams(p model.SPRTParams) SPRT {
	return SPRT{Elo0: p.Elo0, Elo1: p.Elo1, Alpha: p.Alpha, Beta: p.Beta}
}

// Bounds 返回 Wald 判定边界 (lower, upper)
func (s SPRT) Bounds() (lower, upper float64) {
	lower = math.Log(s.Beta / (1 - s.Alpha))
	upper = math.Log((1 - s.Beta) / s.Alpha)
	return lower, upper
}

// LLR 计算对数似然比
//
// 三项分布（胜/和/负）的正态近似：以样本得分方差为公共方差，
// 比较 logistic Elo 模型下 Elo0 与 Elo1 对应的期望得分。
// 胜/和/负任一计数为 0 时先各加 pseudoCount 再估计均值和方差，
// 结果全相同的样本也能随局数增加得出判定。没有对局时返回 0。
func (s SPRT) LLR(r model.Stats) float64 {
	n := float64(r.Games())
	if n == 0 {
		return 0
	}
	score, variance := regularizedMoments(r)
	if variance <= 0 {
		return 0
	}
	s0 := ScoreFromElo(s.Elo0)
	s1 := ScoreFromElo(s.Elo1)
	return n * (s1 - s0) * (2*score - s0 - s1) / (2 * variance)
}

// Result 单次评估结果
type Result struct {
	LLR      float64
	Lower    float64
	Upper    float64
	Decision Decision
}

// Evaluate 根据累计结果评估是否可以停止
func (s SPRT) Evaluate(r model.Stats) Result {
	lower, upper := s.Bounds()
	llr := s.LLR(r)
	res := Result{LLR: llr, Lower: lower, Upper: upper, Decision: Continue}
	switch {
	case llr >= upper:
		res.Decision = AcceptH1
	case llr <= lower:
		res.Decision = AcceptH0
	}
	return res
}

// State 转换为持久化的 SPRT 状态
func (r Result) State() *model.SPRTState {
	return &model.SPRTState{
		LLR:      r.LLR,
		Lower:    r.Lower,
		Upper:    r.Upper,
		Finished: r.Decision != Continue,
		Accepted: r.Decision.Hypothesis(),
	}
}

// ScoreFromElo logistic 模型下 Elo 差对应的期望得分
func ScoreFromElo(elo float64) float64 {
	return 1 / (1 + math.Pow(10, -elo/400))
}

// EloFromScore ScoreFromElo 的反函数，得分须在 (0,1) 内
func EloFromScore(score float64) float64 {
	return -400 * math.Log10(1/score-1)
}

// pseudoCount 计数为 0 时每种结果补充的虚拟局数
const pseudoCount = 0.5

// scoreMoments 单局得分的均值和方差
func scoreMoments(r model.Stats) (mean, variance float64) {
	return moments(float64(r.Wins), float64(r.Draws), float64(r.Losses))
}

// regularizedMoments 同 scoreMoments，但任一计数为 0 时三项各加 pseudoCount
func regularizedMoments(r model.Stats) (mean, variance float64) {
	w, d, l := float64(r.Wins), float64(r.Draws), float64(r.Losses)
	if w == 0 || d == 0 || l == 0 {
		w, d, l = w+pseudoCount, d+pseudoCount, l+pseudoCount
	}
	return moments(w, d, l)
}

func moments(wins, draws, losses float64) (mean, variance float64) {
	n := wins + draws + losses
	w, d, l := wins/n, draws/n, losses/n
	mean = w + d/2
	variance = w*math.Pow(1-mean, 2) + d*math.Pow(0.5-mean, 2) + l*math.Pow(mean, 2)
	return mean, variance
}
