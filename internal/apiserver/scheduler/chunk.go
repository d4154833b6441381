package scheduler

import "match-admin/internal/shared/model"

// referenceTC GamesPerCore 对应的参考时间控制
const referenceTC = "10+0.1"

var referenceSeconds = func() float64 {
	tc, _ := model.ParseTimeControl(referenceTC)
	return tc.EstimatedGameSeconds()
}()

// chunkSize 计算新 Task 的局数
//
// 局数与核心数成正比、与单局时长成反比，取偶数（成对开局），
// 限制在 [MinChunk, MaxChunk] 内，且不超过剩余容量。
func (s *Scheduler) chunkSize(args model.RunArgs, concurrency, capacity int) int {
	if capacity <= 0 {
		return 0
	}
	ratio := 1.0
	if tc, err := model.ParseTimeControl(args.TC); err == nil {
		if secs := tc.EstimatedGameSeconds(); secs > 0 {
			ratio = secs / referenceSeconds
		}
	}
	games := float64(s.config.GamesPerCore*max(concurrency, 1)) / ratio
	if args.Threads > 1 {
		games /= float64(args.Threads)
	}

	n := int(games)
	n -= n % 2
	n = max(n, s.config.MinChunk)
	n = min(n, s.config.MaxChunk)
	return min(n, capacity)
}
