package registry

import (
	"time"

	"github.com/haeun-lim/herd/internal/task"
)

// CleanupEvent reports one entry reclaimed by SweepStale.
type CleanupEvent struct {
	PID    int
	Record task.Record
	Reason task.CleanupReason
}

// SweepStale scans the namespace and reclaims entries whose process is gone,
// whose manager died, or whose age exceeds the staleness window. For the
// latter two the process is still running unsupervised, so terminate is
// invoked before removal. At most one reason applies per entry, in that
// order; entries matching none are left untouched. Matched entries are
// removed in one batched delete.
//
// This is a correctness gate run at the start of every supervised launch,
// not a background job: a long-dead entry must never block a new
// registration for the same pid space.
func (r *Registry) SweepStale(now time.Time, alive func(pid int) bool, terminate func(pid int) error) ([]CleanupEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.entriesLocked()
	if err != nil {
		return nil, err
	}

	var events []CleanupEvent
	var stale []string
	for _, e := range entries {
		reason, ok := r.classify(e, now, alive)
		if !ok {
			continue
		}
		if reason != task.ReasonProcessExited {
			// The task process is still up; stop it before dropping the
			// bookkeeping so no agent keeps running unsupervised.
			if err := terminate(e.PID); err != nil {
				r.logger.Warn("failed to terminate stale task", "pid", e.PID, "reason", reason, "error", err)
			}
		}
		events = append(events, CleanupEvent{
			PID:    e.PID,
			Record: e.Record.WithCleanupReason(reason, now),
			Reason: reason,
		})
		stale = append(stale, e.Key)
	}
	if len(stale) > 0 {
		if err := r.m.DeleteBatch(stale); err != nil {
			return nil, wrapErr(FailMapOp, "sweep", err)
		}
	}
	return events, nil
}

// classify decides the single cleanup reason for an entry, if any.
func (r *Registry) classify(e Entry, now time.Time, alive func(pid int) bool) (task.CleanupReason, bool) {
	if !r.entryAlive(e, alive) {
		return task.ReasonProcessExited, true
	}
	mgr := e.Record.ManagerPID
	if mgr != 0 && mgr != e.PID && !alive(mgr) {
		return task.ReasonManagerMissing, true
	}
	if e.Record.Age(now) > r.maxAge {
		return task.ReasonTimeout, true
	}
	return "", false
}

// entryAlive corroborates the liveness probe with the start time captured at
// registration: pid values recycle, and a reused pid must read as exited.
func (r *Registry) entryAlive(e Entry, alive func(pid int) bool) bool {
	if !alive(e.PID) {
		return false
	}
	if e.Record.ProcStartUnix > 0 && r.startUnix != nil {
		if cur := r.startUnix(e.PID); cur > 0 && cur != e.Record.ProcStartUnix {
			return false
		}
	}
	return true
}
