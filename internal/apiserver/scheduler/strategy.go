// Package scheduler Run 排序策略接口和策略链
package scheduler

import (
	"sort"

	"match-admin/internal/shared/model"
)

// Candidate 一次 request_task 中可能分配给 Worker 的 Run
type Candidate struct {
	Run       *model.Run
	Worker    string
	Resumable bool // Worker 在该 Run 中有可重新激活的暂停 Task
}

// allocatedFraction 已分配局数占目标局数的比例
func (c *Candidate) allocatedFraction() float64 {
	if c.Run.Args.TargetGames <= 0 {
		return 1
	}
	return float64(c.Run.AllocatedGames()) / float64(c.Run.Args.TargetGames)
}

// Strategy Run 排序策略接口
//
// 策略比较两个候选 Run，返回负数表示 a 应优先分配，0 表示该策略无法区分。
// 策略可以组合成策略链，前一个策略无法区分时交给下一个。
type Strategy interface {
	// Name 返回策略名称（用于日志和配置）
	Name() string

	// Compare 比较两个候选 Run
	Compare(a, b *Candidate) int
}

// StrategyChain 策略链
//
// 典型顺序：优先级 → 亲和性 → 负载均衡 → 创建时间
type StrategyChain struct {
	strategies []Strategy
}

// NewStrategyChain 创建策略链
func NewStrategyChain(strategies ...Strategy) *StrategyChain {
	return &StrategyChain{strategies: strategies}
}

// Sort 按策略链顺序对候选 Run 原地稳定排序
func (c *StrategyChain) Sort(cands []*Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		for _, s := range c.strategies {
			if d := s.Compare(cands[i], cands[j]); d != 0 {
				return d < 0
			}
		}
		return false
	})
}

// Add 添加策略到链尾
func (c *StrategyChain) Add(s Strategy) {
	c.strategies = append(c.strategies, s)
}

// Prepend 添加策略到链首
func (c *StrategyChain) Prepend(s Strategy) {
	c.strategies = append([]Strategy{s}, c.strategies...)
}

// Strategies 返回当前策略列表（只读）
func (c *StrategyChain) Strategies() []Strategy {
	result := make([]Strategy, len(c.strategies))
	copy(result, c.strategies)
	return result
}

// PriorityStrategy 管理员设置的 priority 越高越优先
type PriorityStrategy struct{}

func NewPriorityStrategy() *PriorityStrategy { return &PriorityStrategy{} }

func (s *PriorityStrategy) Name() string { return "priority" }

func (s *PriorityStrategy) Compare(a, b *Candidate) int {
	return b.Run.Args.Priority - a.Run.Args.Priority
}

// AffinityStrategy 亲和性策略
//
// Worker 在某个 Run 中留有暂停的 Task 时优先回到该 Run，
// 继续完成已部分执行的局数，而不是在别处新开 Task。
type AffinityStrategy struct{}

func NewAffinityStrategy() *AffinityStrategy { return &AffinityStrategy{} }

func (s *AffinityStrategy) Name() string { return "affinity" }

func (s *AffinityStrategy) Compare(a, b *Candidate) int {
	switch {
	case a.Resumable == b.Resumable:
		return 0
	case a.Resumable:
		return -1
	default:
		return 1
	}
}

// LoadBalanceStrategy 已分配比例越低越优先，让各 Run 均衡推进
type LoadBalanceStrategy struct{}

func NewLoadBalanceStrategy() *LoadBalanceStrategy { return &LoadBalanceStrategy{} }

func (s *LoadBalanceStrategy) Name() string { return "load_balance" }

func (s *LoadBalanceStrategy) Compare(a, b *Candidate) int {
	fa, fb := a.allocatedFraction(), b.allocatedFraction()
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}

// FIFOStrategy 先创建的 Run 优先，ID 兜底保证全序
type FIFOStrategy struct{}

func NewFIFOStrategy() *FIFOStrategy { return &FIFOStrategy{} }

func (s *FIFOStrategy) Name() string { return "fifo" }

func (s *FIFOStrategy) Compare(a, b *Candidate) int {
	if c := a.Run.CreatedAt.Compare(b.Run.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.Run.ID < b.Run.ID:
		return -1
	case a.Run.ID > b.Run.ID:
		return 1
	}
	return 0
}
