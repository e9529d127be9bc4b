// Package prometheus implements the metrics collector port.
package prometheus

import (
	"time"

	"github.com/learnloop/ecosync/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records orchestration metrics with Prometheus.
type Collector struct {
	runsStarted     *prometheus.CounterVec
	runsCompleted   *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runSuccessRate  prometheus.Histogram
	modulesExecuted *prometheus.CounterVec
	moduleDuration  *prometheus.HistogramVec
	activeRuns      prometheus.Gauge
}

// NewCollector creates and registers the collector's metrics.
func NewCollector() *Collector {
	return &Collector{
		runsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecosync_runs_started_total",
				Help: "Total number of orchestration runs started",
			},
			[]string{"trigger"},
		),
		runsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecosync_runs_completed_total",
				Help: "Total number of orchestration runs completed",
			},
			[]string{"trigger"},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecosync_run_duration_seconds",
				Help:    "Orchestration run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"trigger"},
		),
		runSuccessRate: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ecosync_run_success_rate",
				Help:    "Per-run module success rate",
				Buckets: []float64{0, 0.25, 0.5, 0.75, 0.9, 1},
			},
		),
		modulesExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecosync_modules_executed_total",
				Help: "Total number of module executions by terminal status",
			},
			[]string{"module", "status"},
		),
		moduleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecosync_module_duration_seconds",
				Help:    "Module execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"module"},
		),
		activeRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ecosync_active_runs",
				Help: "Number of currently active orchestration runs",
			},
		),
	}
}

// RecordRunStarted counts a run submission.
func (c *Collector) RecordRunStarted(trigger string) {
	c.runsStarted.WithLabelValues(trigger).Inc()
}

// RecordRunCompleted counts a run completion with its rate and duration.
func (c *Collector) RecordRunCompleted(trigger string, successRate float64, duration time.Duration) {
	c.runsCompleted.WithLabelValues(trigger).Inc()
	c.runDuration.WithLabelValues(trigger).Observe(duration.Seconds())
	c.runSuccessRate.Observe(successRate)
}

// RecordModuleExecuted counts one module's terminal state.
func (c *Collector) RecordModuleExecuted(module domain.ModuleName, status domain.ExecutionStatus, duration time.Duration) {
	c.modulesExecuted.WithLabelValues(string(module), string(status)).Inc()
	c.moduleDuration.WithLabelValues(string(module)).Observe(duration.Seconds())
}

// SetActiveRuns sets the in-flight run gauge.
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}
