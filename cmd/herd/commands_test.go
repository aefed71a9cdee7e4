package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/haeun-lim/herd/internal/config"
	"github.com/haeun-lim/herd/internal/registry"
	"github.com/haeun-lim/herd/internal/shmem"
	"github.com/haeun-lim/herd/internal/task"
)

func testCommand(t *testing.T) *command {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := registry.Connect(registry.Config{
		Namespace: "cmd-test",
		Map:       shmem.NewMemory(),
		StartUnix: func(int) int64 { return 0 },
		Logger:    log,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &command{cfg: config.Default(), log: log, reg: reg}
}

func entriesOf(t *testing.T, c *command) []registry.Entry {
	t.Helper()
	entries, err := c.reg.Entries()
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestKillValidation(t *testing.T) {
	c := testCommand(t)
	defer c.Close()

	if err := c.Kill(KillFlags{}); err == nil {
		t.Fatal("expected error for missing pid")
	}
	if err := c.Kill(KillFlags{PID: 424242}); err == nil {
		t.Fatal("expected error for unregistered pid")
	}

	if err := c.reg.Register(5, task.New(5, "claude", "", 0, time.Now())); err != nil {
		t.Fatal(err)
	}
	code := 0
	if err := c.reg.MarkCompleted(5, "success", &code, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := c.Kill(KillFlags{PID: 5}); err == nil {
		t.Fatal("expected error for completed task")
	}
}

func TestWaitUnknownPID(t *testing.T) {
	c := testCommand(t)
	defer c.Close()
	if err := c.Wait(WaitFlags{PID: 31337}); err == nil {
		t.Fatal("expected error for unknown pid")
	}
}

func TestWaitConsumesCompletedEntries(t *testing.T) {
	c := testCommand(t)
	defer c.Close()

	if err := c.reg.Register(10, task.New(10, "codex", "", 0, time.Now())); err != nil {
		t.Fatal(err)
	}
	code := 2
	if err := c.reg.MarkCompleted(10, "failed_with_exit_code_2", &code, time.Now()); err != nil {
		t.Fatal(err)
	}

	if err := c.Wait(WaitFlags{JSON: true}); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := entriesOf(t, c); len(got) != 0 {
		t.Fatalf("entries after wait = %+v, want consumed", got)
	}
}

func TestWaitKeepLeavesEntries(t *testing.T) {
	c := testCommand(t)
	defer c.Close()

	if err := c.reg.Register(11, task.New(11, "gemini", "", 0, time.Now())); err != nil {
		t.Fatal(err)
	}
	code := 0
	if err := c.reg.MarkCompleted(11, "success", &code, time.Now()); err != nil {
		t.Fatal(err)
	}

	if err := c.Wait(WaitFlags{JSON: true, Keep: true}); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := entriesOf(t, c); len(got) != 1 {
		t.Fatalf("entries after wait --keep = %+v", got)
	}
}

func TestRunningTasksFeed(t *testing.T) {
	c := testCommand(t)
	defer c.Close()

	if err := c.reg.Register(20, task.New(20, "claude", "", 0, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := c.reg.Register(21, task.New(21, "codex", "", 0, time.Now())); err != nil {
		t.Fatal(err)
	}
	code := 0
	if err := c.reg.MarkCompleted(21, "success", &code, time.Now()); err != nil {
		t.Fatal(err)
	}

	got := c.runningTasks()
	if len(got) != 1 || got[20] != "claude" {
		t.Fatalf("running tasks = %v", got)
	}
}
