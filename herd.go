// Package herd is the embeddable facade over the task supervisor: launch AI
// coding agents as supervised tasks, inspect the session's shared registry,
// and reclaim stale entries. The herd CLI is a thin layer over this API.
package herd

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haeun-lim/herd/internal/agent"
	"github.com/haeun-lim/herd/internal/config"
	"github.com/haeun-lim/herd/internal/history"
	"github.com/haeun-lim/herd/internal/history/factory"
	"github.com/haeun-lim/herd/internal/metrics"
	"github.com/haeun-lim/herd/internal/registry"
	iapi "github.com/haeun-lim/herd/internal/server"
	"github.com/haeun-lim/herd/internal/supervisor"
	"github.com/haeun-lim/herd/internal/task"
)

// Agent identifies one supported agent CLI.
type Agent = agent.Agent

const (
	Claude = agent.Claude
	Codex  = agent.Codex
	Gemini = agent.Gemini
)

// ParseAgent maps a user-supplied name onto an Agent.
func ParseAgent(s string) (Agent, error) { return agent.Parse(s) }

// Record is the registry entry for one supervised task.
type Record = task.Record

// Entry is one decoded registry slot.
type Entry = registry.Entry

// CleanupEvent reports one entry reclaimed by Sweep.
type CleanupEvent = registry.CleanupEvent

// HistorySink receives task lifecycle events.
type HistorySink = history.Sink

// Config is herd's TOML configuration.
type Config = config.Config

// Supervisor is a handle onto the calling session's task namespace.
type Supervisor struct {
	reg *registry.Registry
	hst history.Sink
}

// Connect opens the registry namespace derived from the calling process's
// root ancestor.
func Connect() (*Supervisor, error) {
	reg, err := registry.Connect(registry.Config{})
	if err != nil {
		return nil, err
	}
	return &Supervisor{reg: reg}, nil
}

// WithHistory attaches a history sink created from dsn (sqlite path,
// postgres:// or clickhouse:// URL) to all subsequent runs and sweeps.
func (s *Supervisor) WithHistory(dsn string) error {
	sink, err := factory.NewSinkFromDSN(dsn)
	if err != nil {
		return err
	}
	s.hst = sink
	return nil
}

// Run launches one supervised agent task and blocks until it finishes,
// returning the exit code to propagate.
func (s *Supervisor) Run(ctx context.Context, a Agent, args []string) (int, error) {
	return supervisor.Run(ctx, supervisor.Options{
		Agent:    a,
		Args:     args,
		Registry: s.reg,
		History:  s.hst,
	})
}

// Tasks returns every entry in the namespace, sorted by pid.
func (s *Supervisor) Tasks() ([]Entry, error) { return s.reg.Entries() }

// Completed returns the completed-but-unread entries.
func (s *Supervisor) Completed() ([]Entry, error) { return s.reg.CompletedUnread() }

// Read consumes a completed entry, returning its final record.
func (s *Supervisor) Read(pid int) (*Record, error) { return s.reg.Remove(pid) }

// Kill terminates a running task. Its supervisor records the completion.
func (s *Supervisor) Kill(pid int) error { return supervisor.Terminate(pid) }

// Sweep reclaims stale entries now and reports what was removed.
func (s *Supervisor) Sweep() ([]CleanupEvent, error) {
	return s.reg.SweepStale(time.Now().UTC(), supervisor.Alive, supervisor.Terminate)
}

// Close releases the registry handle and any history sink.
func (s *Supervisor) Close() error {
	if s.hst != nil {
		_ = s.hst.Close()
	}
	return s.reg.Close()
}

// LoadConfig reads a TOML config file with HERD_* environment overrides.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// NewHTTPServer starts the monitoring API on addr for this supervisor's
// namespace.
func NewHTTPServer(addr, basePath string, s *Supervisor) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.reg)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
