package registry

import (
	"testing"
	"time"

	"github.com/haeun-lim/herd/internal/task"
)

func TestSweepReclaimsExitedProcess(t *testing.T) {
	r, _ := newTestRegistry(t)
	rec := runningRecord(123, 1123, time.Now())
	if err := r.Register(123, rec); err != nil {
		t.Fatal(err)
	}

	terminated := 0
	events, err := r.SweepStale(time.Now(),
		func(p int) bool { return p != 123 },
		func(int) error { terminated++; return nil })
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.PID != 123 || ev.Reason != task.ReasonProcessExited {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Record.CleanupReason != task.ReasonProcessExited {
		t.Fatalf("record reason = %q", ev.Record.CleanupReason)
	}
	if terminated != 0 {
		t.Fatalf("terminate called %d times for an already-exited process", terminated)
	}
	entries, _ := r.Entries()
	if len(entries) != 0 {
		t.Fatalf("entries = %+v, want swept", entries)
	}
}

func TestSweepReclaimsOrphanedManager(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.Register(200, runningRecord(200, 9999, time.Now())); err != nil {
		t.Fatal(err)
	}

	var killed []int
	events, err := r.SweepStale(time.Now(),
		func(p int) bool { return p != 9999 },
		func(p int) error { killed = append(killed, p); return nil })
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Reason != task.ReasonManagerMissing {
		t.Fatalf("events = %+v, want one manager_missing", events)
	}
	// The task itself is still running; the sweep must stop it.
	if len(killed) != 1 || killed[0] != 200 {
		t.Fatalf("terminate calls = %v, want [200]", killed)
	}
}

func TestSweepReclaimsTimedOutTask(t *testing.T) {
	r, _ := newTestRegistry(t)
	started := time.Now().Add(-13 * time.Hour)
	if err := r.Register(456, runningRecord(456, 1, started)); err != nil {
		t.Fatal(err)
	}

	terminated := 0
	events, err := r.SweepStale(time.Now(),
		func(int) bool { return true },
		func(p int) error {
			if p != 456 {
				t.Fatalf("terminate pid = %d", p)
			}
			terminated++
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Reason != task.ReasonTimeout {
		t.Fatalf("events = %+v, want one timeout", events)
	}
	if terminated != 1 {
		t.Fatalf("terminate invoked %d times, want exactly once", terminated)
	}
}

func TestSweepLeavesHealthyEntries(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.Register(300, runningRecord(300, 1, time.Now().Add(-time.Hour))); err != nil {
		t.Fatal(err)
	}

	events, err := r.SweepStale(time.Now(),
		func(int) bool { return true },
		func(int) error { t.Fatal("terminate called on healthy task"); return nil })
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none", events)
	}
	entries, _ := r.Entries()
	if len(entries) != 1 {
		t.Fatalf("healthy entry was removed")
	}
}

func TestSweepAppliesOneReasonInOrder(t *testing.T) {
	// A dead task whose manager is also dead and whose record is ancient still
	// reports process_exited only.
	r, _ := newTestRegistry(t)
	if err := r.Register(42, runningRecord(42, 43, time.Now().Add(-20*time.Hour))); err != nil {
		t.Fatal(err)
	}
	events, err := r.SweepStale(time.Now(),
		func(int) bool { return false },
		func(int) error { t.Fatal("terminate called"); return nil })
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Reason != task.ReasonProcessExited {
		t.Fatalf("events = %+v, want one process_exited", events)
	}
}

func TestSweepDetectsRecycledPID(t *testing.T) {
	// The probe says pid 500 is alive, but its current start time differs from
	// the one captured at registration: same number, different process.
	m := newMemoryWithStart(t, map[int]int64{500: 222222})
	rec := runningRecord(500, 1, time.Now())
	rec.ProcStartUnix = 111111
	if err := m.Register(500, rec); err != nil {
		t.Fatal(err)
	}
	events, err := m.SweepStale(time.Now(),
		func(int) bool { return true },
		func(int) error { t.Fatal("terminate called on a recycled pid"); return nil })
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Reason != task.ReasonProcessExited {
		t.Fatalf("events = %+v, want one process_exited", events)
	}
}

func newMemoryWithStart(t *testing.T, starts map[int]int64) *Registry {
	t.Helper()
	r, _ := newTestRegistry(t)
	r.startUnix = func(pid int) int64 { return starts[pid] }
	return r
}
