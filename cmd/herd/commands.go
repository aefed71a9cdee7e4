package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haeun-lim/herd/internal/agent"
	"github.com/haeun-lim/herd/internal/config"
	"github.com/haeun-lim/herd/internal/history"
	"github.com/haeun-lim/herd/internal/history/factory"
	"github.com/haeun-lim/herd/internal/logger"
	"github.com/haeun-lim/herd/internal/metrics"
	"github.com/haeun-lim/herd/internal/registry"
	"github.com/haeun-lim/herd/internal/server"
	"github.com/haeun-lim/herd/internal/supervisor"
	"github.com/haeun-lim/herd/internal/task"
)

// command bundles the loaded config with the resources every subcommand
// needs: the logger, the shared registry and the optional history sink.
type command struct {
	cfg config.Config
	log *slog.Logger
	reg *registry.Registry
	hst history.Sink
}

// setup loads config and connects to the registry namespace of this shell
// session. The caller owns Close.
func setup(configPath string) (*command, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LoggerConfig())
	slog.SetDefault(log)

	reg, err := registry.Connect(registry.Config{
		MaxRecordAge: cfg.MaxRecordAge,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	var sink history.Sink
	if cfg.History.DSN != "" {
		sink, err = factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("history sink: %w", err)
		}
	}
	return &command{cfg: cfg, log: log, reg: reg, hst: sink}, nil
}

func (c *command) Close() {
	if c.hst != nil {
		_ = c.hst.Close()
	}
	_ = c.reg.Close()
}

// Run launches one supervised agent task and exits with its code.
func (c *command) Run(a agent.Agent, args []string, f RunFlags) error {
	env, err := c.cfg.GlobalEnv()
	if err != nil {
		return err
	}
	env = append(env, f.EnvKVs...)

	code, err := supervisor.Run(context.Background(), supervisor.Options{
		Agent:    a,
		Args:     args,
		Env:      env,
		Dir:      f.Dir,
		Registry: c.reg,
		History:  c.hst,
		LogDir:   c.cfg.TaskLogDir,
		Logger:   c.log,
	})
	exitCode = code
	return err
}

// Status prints the registry entries for this namespace.
func (c *command) Status(f StatusFlags) error {
	entries, err := c.reg.Entries()
	if err != nil {
		return err
	}
	if f.Completed {
		entries = filterCompleted(entries)
	}
	if f.JSON {
		printJSON(entries)
		return nil
	}
	printTaskTable(os.Stdout, entries)
	return nil
}

// Wait blocks until the selected tasks finish, then reports them. Reported
// entries are consumed from the registry unless --keep is given: waiting is
// how completions get read.
func (c *command) Wait(f WaitFlags) error {
	for {
		entries, err := c.reg.Entries()
		if err != nil {
			return err
		}
		if f.PID != 0 {
			entries = filterPID(entries, f.PID)
			if len(entries) == 0 {
				return fmt.Errorf("no task registered for pid %d", f.PID)
			}
		}
		if !anyRunning(entries) {
			done := filterCompleted(entries)
			if f.JSON {
				printJSON(done)
			} else {
				printTaskTable(os.Stdout, done)
			}
			if !f.Keep {
				for _, e := range done {
					if _, err := c.reg.Remove(e.PID); err != nil {
						c.log.Warn("failed to consume completed task", "pid", e.PID, "error", err)
					}
				}
			}
			return nil
		}
		time.Sleep(c.cfg.WaitInterval)
	}
}

// Kill terminates a running task. The supervisor on the other side records
// the completion when its child dies.
func (c *command) Kill(f KillFlags) error {
	if f.PID <= 0 {
		return fmt.Errorf("--pid is required")
	}
	rec, err := c.reg.Get(f.PID)
	if err != nil {
		return err
	}
	if !rec.Running() {
		return fmt.Errorf("task %d already completed", f.PID)
	}
	if err := supervisor.Terminate(f.PID); err != nil {
		return err
	}
	c.log.Info("terminated task", "pid", f.PID, "agent", rec.Agent)
	return nil
}

// Sweep reclaims stale entries immediately and reports what was removed.
func (c *command) Sweep() error {
	events, err := c.reg.SweepStale(time.Now().UTC(), supervisor.Alive, supervisor.Terminate)
	if err != nil {
		return err
	}
	metrics.IncSweepRun()
	for _, ev := range events {
		metrics.IncSweepCleanup(string(ev.Reason))
		fmt.Printf("reclaimed %d (%s, %s)\n", ev.PID, ev.Record.Agent, ev.Reason)
		if c.hst == nil {
			continue
		}
		e := history.Event{Type: history.EventReclaimed, OccurredAt: time.Now().UTC(), PID: ev.PID, Record: ev.Record}
		if err := c.hst.Send(context.Background(), e); err != nil {
			c.log.Warn("failed to export reclaim event", "pid", ev.PID, "error", err)
		}
	}
	if len(events) == 0 {
		fmt.Println("nothing to reclaim")
	}
	return nil
}

// Serve runs the monitoring HTTP API (and the metrics endpoint when enabled)
// until interrupted.
func (c *command) Serve(f ServeFlags) error {
	listen := c.cfg.Server.Listen
	if f.Listen != "" {
		listen = f.Listen
	}

	srv, err := server.NewServer(listen, c.cfg.Server.BasePath, c.reg)
	if err != nil {
		return err
	}
	c.log.Info("monitor API listening", "addr", listen, "base_path", c.cfg.Server.BasePath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsSrv *http.Server
	if c.cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return err
		}
		usage := metrics.NewUsageCollector(c.cfg.Metrics.Usage)
		if err := usage.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			return err
		}
		usage.Start(ctx, c.runningTasks)
		defer usage.Stop()

		metricsSrv = &http.Server{
			Addr:              c.cfg.Metrics.Listen,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() { _ = metricsSrv.ListenAndServe() }()
		c.log.Info("metrics listening", "addr", c.cfg.Metrics.Listen)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}

// runningTasks feeds the usage collector: pid -> agent for running entries.
func (c *command) runningTasks() map[int]string {
	entries, err := c.reg.Entries()
	if err != nil {
		return nil
	}
	out := make(map[int]string)
	for _, e := range entries {
		if e.Record.Running() {
			out[e.PID] = e.Record.Agent
		}
	}
	metrics.SetRunningTasks(len(out))
	return out
}

func filterCompleted(entries []registry.Entry) []registry.Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Record.Status == task.StatusCompletedUnread {
			out = append(out, e)
		}
	}
	return out
}

func filterPID(entries []registry.Entry, pid int) []registry.Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.PID == pid {
			out = append(out, e)
		}
	}
	return out
}

func anyRunning(entries []registry.Entry) bool {
	for _, e := range entries {
		if e.Record.Running() {
			return true
		}
	}
	return false
}

// --- cobra wiring ---

func createRunCommand(g *GlobalFlags, f *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <agent> [-- agent args...]",
		Short: "Launch a supervised agent task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := agent.Parse(args[0])
			if err != nil {
				return err
			}
			c, err := setup(g.ConfigPath)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Run(a, args[1:], *f)
		},
	}
	cmd.Flags().StringVar(&f.Dir, "dir", "", "working directory for the agent")
	cmd.Flags().StringArrayVar(&f.EnvKVs, "env", nil, "extra KEY=VALUE for the agent (repeatable)")
	return cmd
}

func createStatusCommand(g *GlobalFlags, f *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tasks registered in this session's namespace",
		RunE: func(_ *cobra.Command, _ []string) error {
			c, err := setup(g.ConfigPath)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Status(*f)
		},
	}
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&f.Completed, "completed", false, "show completed-but-unread tasks only")
	return cmd
}

func createWaitCommand(g *GlobalFlags, f *WaitFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until tasks finish, then report and consume them",
		RunE: func(_ *cobra.Command, _ []string) error {
			c, err := setup(g.ConfigPath)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Wait(*f)
		},
	}
	cmd.Flags().IntVar(&f.PID, "pid", 0, "wait for this task only")
	cmd.Flags().BoolVar(&f.Keep, "keep", false, "leave completed entries registered")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON instead of a table")
	return cmd
}

func createKillCommand(g *GlobalFlags, f *KillFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Terminate a running task",
		RunE: func(_ *cobra.Command, _ []string) error {
			c, err := setup(g.ConfigPath)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Kill(*f)
		},
	}
	cmd.Flags().IntVar(&f.PID, "pid", 0, "pid of the task to terminate")
	return cmd
}

func createSweepCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim stale registry entries now",
		RunE: func(_ *cobra.Command, _ []string) error {
			c, err := setup(g.ConfigPath)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Sweep()
		},
	}
}

func createServeCommand(g *GlobalFlags, f *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring HTTP API",
		RunE: func(_ *cobra.Command, _ []string) error {
			c, err := setup(g.ConfigPath)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Serve(*f)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "listen address (overrides config)")
	return cmd
}
