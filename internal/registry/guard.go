package registry

import (
	"sync"
	"time"
)

// RegistrationGuard ties a registry entry to the supervision that created
// it. Unless MarkCompleted is called, Close removes the entry — covering
// early returns, panics unwinding the supervisor, and any future exit path
// that skips normal finalization.
type RegistrationGuard struct {
	r    *Registry
	pid  int
	mu   sync.Mutex
	done bool
}

// Guard returns a guard for an entry previously registered for pid.
func (r *Registry) Guard(pid int) *RegistrationGuard {
	return &RegistrationGuard{r: r, pid: pid}
}

// PID returns the pid the guard protects.
func (g *RegistrationGuard) PID() int { return g.pid }

// MarkCompleted finalizes the entry and disarms the guard. After a
// successful call, Close keeps the completed entry in place for readers.
func (g *RegistrationGuard) MarkCompleted(result string, exitCode *int, completedAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return nil
	}
	if err := g.r.MarkCompleted(g.pid, result, exitCode, completedAt); err != nil {
		return err
	}
	g.done = true
	return nil
}

// Close removes the entry when the task never completed. It is idempotent
// and safe to defer alongside an explicit MarkCompleted on the happy path.
func (g *RegistrationGuard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return
	}
	g.done = true
	if _, err := g.r.Remove(g.pid); err != nil {
		g.r.logger.Warn("failed to roll back registration", "pid", g.pid, "error", err)
	}
}
