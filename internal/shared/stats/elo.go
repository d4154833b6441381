package stats

import (
	"math"

	"match-admin/internal/shared/model"
)

// z95 双侧 95% 置信水平对应的正态分位数
const z95 = 1.959963984540054

// scoreEpsilon 避免得分为 0 或 1 时 Elo 发散
const scoreEpsilon = 1e-6

// EstimateElo 计算 Elo 点估计、95% 置信区间和 LOS（likelihood of superiority）
func EstimateElo(r model.Stats) *model.EloEstimate {
	games := r.Games()
	est := &model.EloEstimate{Games: games, LOS: los(r)}
	if games == 0 {
		return est
	}

	score, variance := scoreMoments(r)
	margin := z95 * math.Sqrt(variance/float64(games))

	est.Elo = EloFromScore(clampScore(score))
	est.CILow = EloFromScore(clampScore(score - margin))
	est.CIHigh = EloFromScore(clampScore(score + margin))
	return est
}

// los 新版本更强的概率，只看胜负局
func los(r model.Stats) float64 {
	decisive := float64(r.Wins + r.Losses)
	if decisive == 0 {
		return 0.5
	}
	return 0.5 * (1 + math.Erf(float64(r.Wins-r.Losses)/math.Sqrt(2*decisive)))
}

func clampScore(s float64) float64 {
	return math.Min(math.Max(s, scoreEpsilon), 1-scoreEpsilon)
}
