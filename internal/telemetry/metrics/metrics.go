// Package metrics exposes the job engine's Prometheus instrumentation,
// following the package-level promauto-vars pattern used throughout the
// corpus (e.g. internal/controller/filewatcher/metrics.go).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScheduledTotal counts jobs accepted by Scheduler.schedule.
	ScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_jobs_scheduled_total",
			Help: "Total jobs accepted by the scheduler, by processing mode.",
		},
		[]string{"mode"},
	)

	// CompletedTotal counts jobs reaching a terminal state.
	CompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_jobs_completed_total",
			Help: "Total jobs reaching a terminal state, by terminal state.",
		},
		[]string{"state"},
	)

	// RunningGauge tracks jobs currently in the running table.
	RunningGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_jobs_running",
			Help: "Number of jobs currently in the scheduler's running table.",
		},
	)

	// ScheduledGauge tracks jobs currently queued.
	ScheduledGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_jobs_scheduled",
			Help: "Number of jobs currently in the scheduler's queue.",
		},
	)

	// TickDuration measures dispatch tick latency.
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_scheduler_tick_duration_seconds",
			Help:    "Time spent in one scheduler dispatch tick.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// PoolUtilization tracks active workers per named pool.
	PoolUtilization = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_pool_active_workers",
			Help: "Active workers per named thread pool.",
		},
		[]string{"pool"},
	)

	// PoolCapacity tracks configured core size per named pool.
	PoolCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_pool_capacity",
			Help: "Configured core pool size per named thread pool.",
		},
		[]string{"pool"},
	)

	// JournalProgress tracks the last-observed journal progress per job.
	JournalProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_job_journal_progress",
			Help: "Most recent journal progress (0..1) observed per job id.",
		},
		[]string{"job_id"},
	)
)

// ObserveTick records the duration of a single scheduler dispatch tick.
func ObserveTick(d time.Duration) {
	TickDuration.Observe(d.Seconds())
}
