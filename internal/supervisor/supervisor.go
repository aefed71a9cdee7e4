// Package supervisor spawns one agent CLI as a child process and owns its
// whole lifetime: registry bookkeeping, output capture, signal forwarding
// and the final completion record. One supervisor instance runs one task.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/haeun-lim/herd/internal/agent"
	"github.com/haeun-lim/herd/internal/history"
	"github.com/haeun-lim/herd/internal/metrics"
	"github.com/haeun-lim/herd/internal/ptree"
	"github.com/haeun-lim/herd/internal/registry"
	"github.com/haeun-lim/herd/internal/task"
)

// Options configures one supervised run.
type Options struct {
	Agent agent.Agent
	// Args are passed to the agent CLI verbatim.
	Args []string
	// Env entries are appended to the inherited environment.
	Env []string
	// Dir is the child's working directory; empty means inherit.
	Dir string
	// Registry receives the task record; required.
	Registry *registry.Registry
	// History receives completed/reclaimed events; optional.
	History history.Sink
	// LogDir holds the per-task capture file; defaults to os.TempDir().
	LogDir string
	// Stdin/Stdout/Stderr default to the supervisor's own streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Run spawns the agent and supervises it to completion. It returns the exit
// code the caller should propagate: the child's own code, or 1 when the child
// died without one. An error return means supervision never started or the
// registry could not be maintained; the child is not left running in that
// case.
func Run(ctx context.Context, opts Options) (int, error) {
	if opts.Registry == nil {
		return 1, errors.New("supervisor: registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	logDir := opts.LogDir
	if logDir == "" {
		logDir = os.TempDir()
	}

	// Stale entries are reclaimed before every launch so a dead task can
	// never block a fresh registration or linger past the 12h window.
	sweep(ctx, opts.Registry, opts.History, logger)

	bin, err := opts.Agent.Resolve()
	if err != nil {
		return 1, err
	}

	cmd := exec.CommandContext(ctx, bin, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Stdin = stdin
	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return 1, fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return 1, fmt.Errorf("supervisor: stderr pipe: %w", err)
	}
	configureSysProcAttr(cmd)

	startedAt := time.Now().UTC()
	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("supervisor: start %s: %w", opts.Agent, err)
	}
	pid := cmd.Process.Pid
	metrics.IncLaunch(opts.Agent.String())
	logger.Info("agent started", "agent", opts.Agent.String(), "pid", pid, "bin", bin)

	logPath := filepath.Join(logDir, fmt.Sprintf("herd-task-%d.log", pid))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		reap(cmd, pid)
		return 1, fmt.Errorf("supervisor: open task log: %w", err)
	}

	rec := buildRecord(pid, opts.Agent, logPath, startedAt)
	if err := opts.Registry.Register(pid, rec); err != nil {
		_ = logFile.Close()
		reap(cmd, pid)
		return 1, fmt.Errorf("supervisor: register pid %d: %w", pid, err)
	}
	guard := opts.Registry.Guard(pid)
	defer guard.Close()

	release := armForwarding(pid)

	cw := newCapture(logFile)
	done := make(chan struct{}, 2)
	go func() { cw.drain(stdout, outPipe); done <- struct{}{} }()
	go func() { cw.drain(stderr, errPipe); done <- struct{}{} }()
	<-done
	<-done

	waitErr := cmd.Wait()
	// The child is gone; disarm before finalization so a Ctrl-C during the
	// registry write cannot be forwarded to a recycled pid.
	release()
	closeErr := cw.close()

	code, result := classifyExit(waitErr)
	completedAt := time.Now().UTC()
	if err := guard.MarkCompleted(result, &code, completedAt); err != nil {
		// The deferred guard rolls the entry back; nothing can read a
		// completion that was never recorded.
		return code, fmt.Errorf("supervisor: record completion for pid %d: %w", pid, err)
	}
	metrics.IncCompletion(opts.Agent.String(), result)
	metrics.ObserveDuration(opts.Agent.String(), completedAt.Sub(startedAt).Seconds())
	logger.Info("agent finished", "agent", opts.Agent.String(), "pid", pid, "result", result, "exit_code", code, "log", logPath)

	if opts.History != nil {
		final, err := opts.Registry.Get(pid)
		if err != nil {
			final = rec
		}
		e := history.Event{Type: history.EventCompleted, OccurredAt: completedAt, PID: pid, Record: final}
		if err := opts.History.Send(ctx, e); err != nil {
			logger.Warn("failed to export completion event", "pid", pid, "error", err)
		}
	}
	if closeErr != nil {
		return code, fmt.Errorf("supervisor: finalize task log %s: %w", logPath, closeErr)
	}
	return code, nil
}

// buildRecord snapshots the supervisor's ancestry into the child's record.
// The chain starts at the child and walks up through this process; the start
// time pins the pid against reuse.
func buildRecord(pid int, a agent.Agent, logPath string, startedAt time.Time) task.Record {
	rec := task.New(pid, a.String(), logPath, os.Getpid(), startedAt)
	anc := ptree.Walk(os.Getpid())
	rec.ProcessChain = append([]int{pid}, anc.Chain...)
	rec.RootParentPID = anc.RootParent
	rec.TreeDepth = anc.Depth + 1
	rec.ProcStartUnix = ptree.StartUnix(pid)
	return rec
}

// sweep reclaims stale entries and exports each as a reclaimed event.
func sweep(ctx context.Context, reg *registry.Registry, sink history.Sink, logger *slog.Logger) {
	events, err := reg.SweepStale(time.Now().UTC(), Alive, Terminate)
	if err != nil {
		logger.Warn("staleness sweep failed", "error", err)
		return
	}
	metrics.IncSweepRun()
	for _, ev := range events {
		metrics.IncSweepCleanup(string(ev.Reason))
		logger.Info("reclaimed stale task", "pid", ev.PID, "reason", ev.Reason, "agent", ev.Record.Agent)
		if sink == nil {
			continue
		}
		e := history.Event{Type: history.EventReclaimed, OccurredAt: time.Now().UTC(), PID: ev.PID, Record: ev.Record}
		if err := sink.Send(ctx, e); err != nil {
			logger.Warn("failed to export reclaim event", "pid", ev.PID, "error", err)
		}
	}
}

// classifyExit maps a Wait error onto the exit code and result string stored
// in the record. A child killed by a signal has no exit code; it reports
// failure with code 1.
func classifyExit(waitErr error) (int, string) {
	if waitErr == nil {
		return 0, "success"
	}
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) && ee.ExitCode() >= 0 {
		return ee.ExitCode(), fmt.Sprintf("failed_with_exit_code_%d", ee.ExitCode())
	}
	return 1, "failed_without_exit_code"
}

// reap kills a child whose supervision could not be established and waits it
// out so no zombie is left behind.
func reap(cmd *exec.Cmd, pid int) {
	_ = Terminate(pid)
	_ = cmd.Wait()
}
