package registry

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/haeun-lim/herd/internal/shmem"
	"github.com/haeun-lim/herd/internal/task"
)

func newTestRegistry(t *testing.T) (*Registry, *shmem.Memory) {
	t.Helper()
	m := shmem.NewMemory()
	r, err := Connect(Config{
		Namespace: "test",
		Map:       m,
		StartUnix: func(int) int64 { return 0 },
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return r, m
}

func runningRecord(pid, manager int, startedAt time.Time) task.Record {
	return task.New(pid, "claude", "/tmp/herd-task.log", manager, startedAt)
}

func TestRegisterEntriesRemoveRoundTrip(t *testing.T) {
	r, _ := newTestRegistry(t)
	rec := runningRecord(123, 99, time.Now().UTC())

	if err := r.Register(123, rec); err != nil {
		t.Fatalf("register: %v", err)
	}
	entries, err := r.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].PID != 123 || entries[0].Key != "123" {
		t.Fatalf("entry = %+v", entries[0])
	}
	if entries[0].Record.Agent != "claude" || entries[0].Record.ManagerPID != 99 {
		t.Fatalf("record = %+v", entries[0].Record)
	}

	prior, err := r.Remove(123)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if prior == nil || prior.LogID != "123" {
		t.Fatalf("remove prior = %+v", prior)
	}
	entries, _ = r.Entries()
	if len(entries) != 0 {
		t.Fatalf("entries after remove = %d", len(entries))
	}
}

func TestRemoveMissingReturnsNil(t *testing.T) {
	r, _ := newTestRegistry(t)
	prior, err := r.Remove(55555)
	if err != nil {
		t.Fatalf("remove missing pid errored: %v", err)
	}
	if prior != nil {
		t.Fatalf("prior = %+v, want nil", prior)
	}
}

func TestRegisterRejectsDuplicatePID(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.Register(321, runningRecord(321, 1, time.Now())); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(321, runningRecord(321, 2, time.Now()))
	if !errors.Is(err, ErrTaskExists) {
		t.Fatalf("duplicate register err = %v, want ErrTaskExists", err)
	}
	// The original record must be untouched.
	rec, err := r.Get(321)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.ManagerPID != 1 {
		t.Fatalf("record overwritten: manager pid = %d", rec.ManagerPID)
	}
}

func TestMarkCompletedAndUnreadFilter(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.Register(10, runningRecord(10, 1, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(20, runningRecord(20, 1, time.Now())); err != nil {
		t.Fatal(err)
	}

	code := 0
	at := time.Unix(1700000000, 0).UTC()
	if err := r.MarkCompleted(10, "ok", &code, at); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	unread, err := r.CompletedUnread()
	if err != nil {
		t.Fatalf("completed unread: %v", err)
	}
	if len(unread) != 1 || unread[0].PID != 10 {
		t.Fatalf("unread = %+v, want just pid 10", unread)
	}
	got := unread[0].Record
	if got.Status != task.StatusCompletedUnread || got.Result != "ok" {
		t.Fatalf("record = %+v", got)
	}
	if got.ExitCode == nil || *got.ExitCode != 0 || !got.CompletedAt.Equal(at) {
		t.Fatalf("completion fields = %+v", got)
	}
}

func TestMarkCompletedMissingPID(t *testing.T) {
	r, _ := newTestRegistry(t)
	err := r.MarkCompleted(404, "ok", nil, time.Now())
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestGuardDropRemovesEntry(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.Register(77777, runningRecord(77777, 1, time.Now())); err != nil {
		t.Fatal(err)
	}
	g := r.Guard(77777)
	// Simulates a supervision that unwound without completing.
	g.Close()

	entries, err := r.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %+v, want empty after guard drop", entries)
	}
}

func TestGuardCompletedKeepsEntry(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.Register(88888, runningRecord(88888, 1, time.Now())); err != nil {
		t.Fatal(err)
	}
	g := r.Guard(88888)
	code := 2
	if err := g.MarkCompleted("failed_with_exit_code_2", &code, time.Now()); err != nil {
		t.Fatalf("guard mark completed: %v", err)
	}
	g.Close()

	entries, err := r.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want the completed entry to survive", len(entries))
	}
	rec := entries[0].Record
	if rec.Status != task.StatusCompletedUnread || rec.Result != "failed_with_exit_code_2" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.ExitCode == nil || *rec.ExitCode != 2 {
		t.Fatalf("exit code = %v", rec.ExitCode)
	}
}

func TestBindTaskIDAndWorktree(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.Register(31, runningRecord(31, 1, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := r.BindTaskID(31, "task-abc"); err != nil {
		t.Fatalf("bind task id: %v", err)
	}
	if err := r.BindWorktree(31, task.WorktreeInfo{Path: "/wt/task-abc", Branch: "herd/task-abc"}); err != nil {
		t.Fatalf("bind worktree: %v", err)
	}
	rec, err := r.Get(31)
	if err != nil {
		t.Fatal(err)
	}
	if rec.TaskID != "task-abc" {
		t.Fatalf("task id = %q", rec.TaskID)
	}
	if rec.Worktree == nil || rec.Worktree.Path != "/wt/task-abc" {
		t.Fatalf("worktree = %+v", rec.Worktree)
	}
	if err := r.BindTaskID(999, "x"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("bind on missing pid err = %v", err)
	}
}

func TestEntriesPurgesCorruptSlots(t *testing.T) {
	r, m := newTestRegistry(t)
	if err := r.Register(12, runningRecord(12, 1, time.Now())); err != nil {
		t.Fatal(err)
	}
	// A legacy key that is not a pid, and a value that is not a record.
	if err := m.Put("not-a-pid", []byte(`{"status":"running"}`)); err != nil {
		t.Fatal(err)
	}
	if err := m.Put("13", []byte(`{"status":"weird"}`)); err != nil {
		t.Fatal(err)
	}

	entries, err := r.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].PID != 12 {
		t.Fatalf("entries = %+v, want the valid entry only", entries)
	}
	// Self-healing: corrupt slots are gone from the underlying map.
	snap, _ := m.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("underlying map = %v, want corrupt slots purged", snap)
	}
}
