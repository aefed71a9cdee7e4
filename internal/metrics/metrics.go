package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	taskLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "herd",
			Subsystem: "task",
			Name:      "launches_total",
			Help:      "Number of supervised agent launches.",
		}, []string{"agent"},
	)
	taskCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "herd",
			Subsystem: "task",
			Name:      "completions_total",
			Help:      "Number of supervised tasks that exited, by result.",
		}, []string{"agent", "result"},
	)
	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "herd",
			Subsystem: "task",
			Name:      "duration_seconds",
			Help:      "Wall-clock runtime of supervised tasks.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"agent"},
	)
	sweepRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "herd",
			Subsystem: "task",
			Name:      "sweep_runs_total",
			Help:      "Number of staleness sweeps executed.",
		},
	)
	sweepCleanups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "herd",
			Subsystem: "task",
			Name:      "sweep_cleanups_total",
			Help:      "Number of registry entries reclaimed by sweeps, by reason.",
		}, []string{"reason"},
	)
	runningTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "herd",
			Subsystem: "task",
			Name:      "running",
			Help:      "Tasks currently registered as running in this namespace.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{taskLaunches, taskCompletions, taskDuration, sweepRuns, sweepCleanups, runningTasks}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncLaunch(agent string) {
	if regOK.Load() {
		taskLaunches.WithLabelValues(agent).Inc()
	}
}

func IncCompletion(agent, result string) {
	if regOK.Load() {
		taskCompletions.WithLabelValues(agent, result).Inc()
	}
}

func ObserveDuration(agent string, seconds float64) {
	if regOK.Load() {
		taskDuration.WithLabelValues(agent).Observe(seconds)
	}
}

func IncSweepRun() {
	if regOK.Load() {
		sweepRuns.Inc()
	}
}

func IncSweepCleanup(reason string) {
	if regOK.Load() {
		sweepCleanups.WithLabelValues(reason).Inc()
	}
}

func SetRunningTasks(n int) {
	if regOK.Load() {
		runningTasks.Set(float64(n))
	}
}
