package metrics

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// UsageConfig holds configuration for task resource sampling.
type UsageConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// UsageCollector periodically samples CPU and memory of running supervised
// tasks and exports them as gauges labeled by pid and agent. Samples are
// best-effort: a task that exits between listing and sampling is skipped.
type UsageCollector struct {
	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	seen     map[int]string // pid -> agent, for stale series cleanup

	cpuPercent  *prometheus.GaugeVec
	memoryBytes *prometheus.GaugeVec
}

// NewUsageCollector creates a collector with the given sampling interval.
// Intervals below one second are raised to one second.
func NewUsageCollector(cfg UsageConfig) *UsageCollector {
	interval := cfg.Interval
	if interval < time.Second {
		interval = time.Second
	}
	return &UsageCollector{
		interval: interval,
		seen:     make(map[int]string),
		cpuPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "herd",
				Subsystem: "task",
				Name:      "cpu_percent",
				Help:      "CPU usage of a supervised task process.",
			}, []string{"pid", "agent"},
		),
		memoryBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "herd",
				Subsystem: "task",
				Name:      "memory_bytes",
				Help:      "Resident memory of a supervised task process.",
			}, []string{"pid", "agent"},
		),
	}
}

// RegisterMetrics registers the usage gauges with the provided registerer.
func (c *UsageCollector) RegisterMetrics(r prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.cpuPercent, c.memoryBytes} {
		if err := r.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start begins periodic sampling. tasks returns the currently running
// supervised pids mapped to their agent name. Start returns immediately;
// sampling stops when ctx is done or Stop is called.
func (c *UsageCollector) Start(ctx context.Context, tasks func() map[int]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sample(tasks())
			}
		}
	}()
}

// Stop halts sampling. Safe to call without a prior Start.
func (c *UsageCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *UsageCollector) sample(tasks map[int]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for pid, agent := range tasks {
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			continue
		}
		labels := prometheus.Labels{"pid": strconv.Itoa(pid), "agent": agent}
		if cpu, err := p.CPUPercent(); err == nil {
			c.cpuPercent.With(labels).Set(cpu)
		}
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			c.memoryBytes.With(labels).Set(float64(mem.RSS))
		}
		c.seen[pid] = agent
	}

	// Drop series for tasks that are no longer registered.
	for pid, agent := range c.seen {
		if _, ok := tasks[pid]; ok {
			continue
		}
		labels := prometheus.Labels{"pid": strconv.Itoa(pid), "agent": agent}
		c.cpuPercent.Delete(labels)
		c.memoryBytes.Delete(labels)
		delete(c.seen, pid)
	}
}
