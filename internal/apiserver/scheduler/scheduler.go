// Package scheduler 对局任务调度器
//
// 调度器拥有 Run/Task 状态机：
//   - RequestTask：为 Worker 分配（或重新激活）一段对局
//   - UpdateTask：合并 Worker 上报的增量结果，重算统计，判定是否继续
//   - ScavengeStaleTasks：回收长时间没有心跳的 Task
//   - Stop/Delete/Modify/Approve/NewRun：管理操作，写入审计记录
//
// 所有读-改-写都通过 writebuffer.Buffer.Mutate 在 per-run 临界区内完成，
// 临界区内只做内存计算；封禁名单、PGN 归档、审计记录都在临界区之外调用。
package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"match-admin/internal/apiserver/writebuffer"
	"match-admin/internal/shared/actionlog"
	"match-admin/internal/shared/archive"
	"match-admin/internal/shared/registry"
	"match-admin/pkg/logging"
)

// Scheduler 任务调度器
type Scheduler struct {
	config   *Config
	buffer   *writebuffer.Buffer
	registry registry.Registry
	actions  actionlog.Recorder
	archive  archive.Sink
	chain    *StrategyChain
	logger   *logging.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewScheduler 创建调度器实例
//
// 参数：
//   - buffer: Run 写缓冲（同时提供 per-run 锁）
//   - reg: Worker 封禁名单（nil 表示不封禁任何 Worker）
//   - actions: 审计记录（nil 表示不记录）
//   - sink: PGN 归档（nil 表示丢弃）
//   - config: 调度配置（nil 使用默认配置）
func NewScheduler(buffer *writebuffer.Buffer, reg registry.Registry, actions actionlog.Recorder, sink archive.Sink, config *Config) (*Scheduler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = registry.NewStatic()
	}
	if actions == nil {
		actions = actionlog.Nop{}
	}
	if sink == nil {
		sink = archive.Nop{}
	}

	return &Scheduler{
		config:   config,
		buffer:   buffer,
		registry: reg,
		actions:  actions,
		archive:  sink,
		chain:    config.BuildStrategyChain(),
		logger:   logging.Default("scheduler"),
		metrics:  NewMetrics(prometheus.NewRegistry(), "match"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetLogger 替换日志器
func (s *Scheduler) SetLogger(logger *logging.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetMetrics 替换指标（进程入口注册到默认 Registerer）
func (s *Scheduler) SetMetrics(m *Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// SetClock 替换时间源（测试用）
func (s *Scheduler) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetStrategyChain 设置自定义策略链
func (s *Scheduler) SetStrategyChain(chain *StrategyChain) {
	s.chain = chain
}

// GetConfig 获取当前配置
func (s *Scheduler) GetConfig() *Config {
	return s.config
}
