package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 调度器指标
type Metrics struct {
	Assignments  *prometheus.CounterVec
	NoWork       prometheus.Counter
	Blocked      prometheus.Counter
	Updates      *prometheus.CounterVec
	RunsFinished *prometheus.CounterVec
	Scavenged    prometheus.Counter
	AdminActions *prometheus.CounterVec
	ChunkSize    prometheus.Histogram
}

// NewMetrics 在指定 Registerer 上注册指标，reg 为 nil 时使用默认 Registerer
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Assignments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "assignments_total",
				Help:      "Tasks handed to workers",
			},
			[]string{"kind"}, // new, resumed
		),
		NoWork: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "no_work_total",
				Help:      "Task requests answered with no work",
			},
		),
		Blocked: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "blocked_requests_total",
				Help:      "Task requests refused because the worker is blocked",
			},
		),
		Updates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "updates_total",
				Help:      "Task updates by outcome",
			},
			[]string{"outcome"}, // alive, stale, rejected, completed, finished
		),
		RunsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "runs_finished_total",
				Help:      "Runs finished by reason",
			},
			[]string{"reason"}, // H0, H1, games, stopped, deleted
		),
		Scavenged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "scavenged_tasks_total",
				Help:      "Active tasks deactivated for missing heartbeats",
			},
		),
		AdminActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "admin_actions_total",
				Help:      "Administrative run mutations",
			},
			[]string{"kind"},
		),
		ChunkSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "chunk_games",
				Help:      "Games per newly created task",
				Buckets:   prometheus.ExponentialBuckets(2, 2, 12),
			},
		),
	}
}
