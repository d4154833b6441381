// Package scheduler 调度器配置
package scheduler

import (
	"fmt"
	"time"
)

// Config 调度器配置
type Config struct {
	// RequireApproval 只向已审批的 Run 分配任务
	RequireApproval bool `yaml:"require_approval"`

	// GamesPerCore 参考时间控制（10+0.1）下每个核心一次领取的局数
	GamesPerCore int `yaml:"games_per_core"`

	// MinChunk / MaxChunk 单个 Task 局数的上下限
	MinChunk int `yaml:"min_chunk"`
	MaxChunk int `yaml:"max_chunk"`

	// MaxTasksPerWorker 单个 Worker 跨 Run 同时持有的活跃 Task 数上限（请求未指定时使用）
	MaxTasksPerWorker int `yaml:"max_tasks_per_worker"`

	// StaleTimeout Task 超过该时间没有心跳即被回收
	StaleTimeout time.Duration `yaml:"stale_timeout"`

	// ScavengeInterval 回收扫描间隔
	ScavengeInterval time.Duration `yaml:"scavenge_interval"`

	// Strategy Run 排序策略链
	Strategy StrategyConfig `yaml:"strategy"`
}

// StrategyConfig Run 排序策略配置
type StrategyConfig struct {
	// Chain 按优先级排列的策略名称
	// 可选值: "priority", "affinity", "load_balance", "fifo"
	Chain []string `yaml:"chain"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		GamesPerCore:      250,
		MinChunk:          2,
		MaxChunk:          2000,
		MaxTasksPerWorker: 1,
		StaleTimeout:      30 * time.Minute,
		ScavengeInterval:  time.Minute,
		Strategy: StrategyConfig{
			Chain: defaultChain(),
		},
	}
}

func defaultChain() []string {
	return []string{"priority", "affinity", "load_balance", "fifo"}
}

// Validate 验证配置，零值填充默认值
func (c *Config) Validate() error {
	if c.GamesPerCore <= 0 {
		c.GamesPerCore = 250
	}
	if c.MinChunk <= 0 {
		c.MinChunk = 2
	}
	if c.MaxChunk <= 0 {
		c.MaxChunk = 2000
	}
	if c.MinChunk > c.MaxChunk {
		return fmt.Errorf("scheduler: min_chunk %d exceeds max_chunk %d", c.MinChunk, c.MaxChunk)
	}
	if c.MaxTasksPerWorker <= 0 {
		c.MaxTasksPerWorker = 1
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = 30 * time.Minute
	}
	if c.ScavengeInterval <= 0 {
		c.ScavengeInterval = time.Minute
	}
	if len(c.Strategy.Chain) == 0 {
		c.Strategy.Chain = defaultChain()
	}
	for _, name := range c.Strategy.Chain {
		if !knownStrategy(name) {
			return fmt.Errorf("scheduler: unknown strategy %q", name)
		}
	}
	return nil
}

// BuildStrategyChain 根据配置构建策略链
func (c *Config) BuildStrategyChain() *StrategyChain {
	chain := NewStrategyChain()

	for _, name := range c.Strategy.Chain {
		switch name {
		case "priority":
			chain.Add(NewPriorityStrategy())
		case "affinity":
			chain.Add(NewAffinityStrategy())
		case "load_balance":
			chain.Add(NewLoadBalanceStrategy())
		case "fifo":
			chain.Add(NewFIFOStrategy())
		}
	}

	// 保证排序结果确定
	if len(chain.strategies) == 0 || chain.strategies[len(chain.strategies)-1].Name() != "fifo" {
		chain.Add(NewFIFOStrategy())
	}

	return chain
}

func knownStrategy(name string) bool {
	switch name {
	case "priority", "affinity", "load_balance", "fifo":
		return true
	}
	return false
}
