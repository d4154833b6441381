package stats

import "match-admin/internal/shared/model"

// Summary 一次完整重算的结果
//
// stats 包只负责计算，写回 Run 由调度器完成。
type Summary struct {
	Results  model.Stats
	SPRT     *model.SPRTState // 固定局数测试为 nil
	Elo      *model.EloEstimate
	Decision Decision
}

// Summarize 根据测试参数和 Task 列表重算汇总结果
func Summarize(args model.RunArgs, tasks []model.Task) Summary {
	results := Aggregate(tasks)
	sum := Summary{
		Results:  results,
		Elo:      EstimateElo(results),
		Decision: Continue,
	}
	if args.SPRT != nil {
		res := FromParams(*args.SPRT).Evaluate(results)
		sum.SPRT = res.State()
		sum.Decision = res.Decision
	}
	return sum
}
