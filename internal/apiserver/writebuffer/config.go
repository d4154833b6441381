package writebuffer

import "time"

// Config 写缓冲配置
type Config struct {
	// FlushInterval 定时刷盘间隔
	FlushInterval time.Duration `yaml:"flush_interval"`

	// MaxPendingMutations 单个 Run 累计未刷盘修改数达到该值时立即触发刷盘
	MaxPendingMutations int `yaml:"max_pending_mutations"`

	// RetryBase / RetryMax 刷盘失败退避的初始与最大间隔
	RetryBase time.Duration `yaml:"retry_base"`
	RetryMax  time.Duration `yaml:"retry_max"`

	// MaxRetries 单次刷盘内对同一 Run 的最大重试次数，用尽后留待下一轮
	MaxRetries int `yaml:"max_retries"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		FlushInterval:       time.Second,
		MaxPendingMutations: 100,
		RetryBase:           50 * time.Millisecond,
		RetryMax:            5 * time.Second,
		MaxRetries:          5,
	}
}

// Validate 验证配置，零值填充默认值
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.MaxPendingMutations <= 0 {
		c.MaxPendingMutations = def.MaxPendingMutations
	}
	if c.RetryBase <= 0 {
		c.RetryBase = def.RetryBase
	}
	if c.RetryMax < c.RetryBase {
		c.RetryMax = max(def.RetryMax, c.RetryBase)
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	return nil
}
