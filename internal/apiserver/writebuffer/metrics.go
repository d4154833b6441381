package writebuffer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 写缓冲指标
type Metrics struct {
	FlushAttempts *prometheus.CounterVec
	FlushFailures prometheus.Counter
	FlushDuration prometheus.Histogram
	BufferedRuns  prometheus.Gauge
	DirtyRuns     prometheus.Gauge
	Evictions     *prometheus.CounterVec

	// SchemaViolations 按阶段（mutate/flush）统计被拒绝的文档，flush 阶段非零需要告警
	SchemaViolations *prometheus.CounterVec
}

// NewMetrics 在指定 Registerer 上注册指标，reg 为 nil 时使用默认 Registerer
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		FlushAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "buffer",
				Name:      "flush_attempts_total",
				Help:      "Run document writes attempted by the write buffer",
			},
			[]string{"result"},
		),
		FlushFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "buffer",
				Name:      "flush_failures_total",
				Help:      "Run document writes that failed and were left dirty",
			},
		),
		FlushDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "buffer",
				Name:      "flush_duration_seconds",
				Help:      "Duration of a complete flush pass",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),
		BufferedRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "buffer",
				Name:      "runs",
				Help:      "Run documents currently held in memory",
			},
		),
		DirtyRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "buffer",
				Name:      "dirty_runs",
				Help:      "Run documents with mutations not yet written to the store",
			},
		),
		Evictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "buffer",
				Name:      "evictions_total",
				Help:      "Run documents dropped from memory",
			},
			[]string{"reason"},
		),
		SchemaViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "buffer",
				Name:      "schema_violations_total",
				Help:      "Run documents rejected for violating structural constraints",
			},
			[]string{"stage"},
		),
	}
}
