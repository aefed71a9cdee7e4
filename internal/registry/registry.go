// Package registry implements the namespaced, cross-process task registry:
// a pid -> task.Record map living in a shared memory region that unrelated
// invocations of herd open concurrently. Namespacing by root ancestor means
// every process spawned under the same shell session sees the same tasks,
// while unrelated sessions cannot collide.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/haeun-lim/herd/internal/ptree"
	"github.com/haeun-lim/herd/internal/shmem"
	"github.com/haeun-lim/herd/internal/task"
)

// DefaultMaxRecordAge is the backstop age after which the sweep reclaims a
// task even when it and its manager are still alive.
const DefaultMaxRecordAge = 12 * time.Hour

// Config controls Connect. The zero value namespaces by the calling
// process's cached root ancestor and applies the default staleness window.
type Config struct {
	// Namespace overrides ancestry-derived namespacing (tests, tooling).
	Namespace string
	// MaxRecordAge bounds how long an entry may stay registered.
	MaxRecordAge time.Duration
	// RegionSize is passed through to the shared region at creation.
	RegionSize int
	// Map injects a map implementation; when nil the shared file region for
	// the namespace is opened.
	Map shmem.Map
	// StartUnix corroborates entry liveness against PID reuse. Defaults to
	// the platform inspector; set explicitly in tests.
	StartUnix func(pid int) int64
	Logger    *slog.Logger
}

// Registry is a handle onto one namespace of the shared task map.
// The underlying region is never assumed safe for unsynchronized access:
// every operation on this handle serializes through one mutex, and the
// region's own file lock covers other processes.
type Registry struct {
	mu        sync.Mutex
	m         shmem.Map
	namespace string
	maxAge    time.Duration
	startUnix func(pid int) int64
	logger    *slog.Logger
}

// Entry is one decoded registry slot.
type Entry struct {
	PID    int
	Key    string
	Record task.Record
}

// Connect opens the registry namespace for the calling process. Ancestry
// resolution is cached per process lifetime; its failure degrades to a
// single-element chain (a private namespace), never to a connect error.
func Connect(cfg Config) (*Registry, error) {
	ns := cfg.Namespace
	if ns == "" {
		ns = fmt.Sprintf("herd-%d", ptree.CachedRoot())
	}
	maxAge := cfg.MaxRecordAge
	if maxAge <= 0 {
		maxAge = DefaultMaxRecordAge
	}
	m := cfg.Map
	if m == nil {
		var err error
		m, err = shmem.OpenOrCreate(ns, cfg.RegionSize)
		if err != nil {
			return nil, wrapErr(FailInit, "connect", err)
		}
	}
	start := cfg.StartUnix
	if start == nil {
		start = ptree.StartUnix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{m: m, namespace: ns, maxAge: maxAge, startUnix: start, logger: logger}, nil
}

// Namespace returns the namespace this handle is connected to.
func (r *Registry) Namespace() string { return r.namespace }

// MaxRecordAge returns the staleness window applied by SweepStale.
func (r *Registry) MaxRecordAge() time.Duration { return r.maxAge }

// Register inserts a record for pid. It fails with ErrTaskExists when an
// entry is already present; the sweep runs before every launch, so a
// conflicting entry is either live or about to be reclaimed, and neither may
// be silently overwritten.
func (r *Registry) Register(pid int, rec task.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := rec.Marshal()
	if err != nil {
		return wrapErr(FailCodec, "register", err)
	}
	inserted, err := r.m.PutIfAbsent(key(pid), data)
	if err != nil {
		return wrapErr(FailMapOp, "register", err)
	}
	if !inserted {
		return fmt.Errorf("register pid %d: %w", pid, ErrTaskExists)
	}
	return nil
}

// MarkCompleted applies the Running -> CompletedUnread transition for pid.
// Across processes this is read-modify-write with last-writer-wins; only the
// process that spawned pid calls it in practice.
func (r *Registry) MarkCompleted(pid int, result string, exitCode *int, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.getLocked(pid)
	if err != nil {
		return err
	}
	rec.MarkCompleted(result, exitCode, completedAt)
	return r.putLocked("mark-completed", pid, rec)
}

// BindTaskID attaches an externally assigned identifier to an existing
// entry. Registration and id binding are deliberately separate steps.
func (r *Registry) BindTaskID(pid int, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.getLocked(pid)
	if err != nil {
		return err
	}
	rec.TaskID = id
	return r.putLocked("bind-task-id", pid, rec)
}

// BindWorktree attaches isolated-worktree metadata to an existing entry.
func (r *Registry) BindWorktree(pid int, wt task.WorktreeInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.getLocked(pid)
	if err != nil {
		return err
	}
	rec.Worktree = &wt
	return r.putLocked("bind-worktree", pid, rec)
}

// Remove deletes the entry for pid and returns the prior record, or nil when
// no entry (or only a corrupt one) was present. Missing keys are not errors.
func (r *Registry) Remove(pid int) (*task.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior, ok, err := r.m.Delete(key(pid))
	if err != nil {
		return nil, wrapErr(FailMapOp, "remove", err)
	}
	if !ok {
		return nil, nil
	}
	rec, err := task.Unmarshal(prior)
	if err != nil {
		r.logger.Warn("removed unparseable registry entry", "pid", pid, "error", err)
		return nil, nil
	}
	return &rec, nil
}

// Get returns the record for pid, or ErrTaskNotFound.
func (r *Registry) Get(pid int) (task.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(pid)
}

// Entries snapshots the whole namespace. Keys that do not parse as pids and
// values that do not decode as records are logged and removed in the same
// call; corrupt or legacy entries heal instead of surfacing as errors.
func (r *Registry) Entries() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entriesLocked()
}

// CompletedUnread filters Entries to completed-but-unread tasks.
func (r *Registry) CompletedUnread() ([]Entry, error) {
	all, err := r.Entries()
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, e := range all {
		if e.Record.Status == task.StatusCompletedUnread {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close releases the handle onto the shared region.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m.Close()
}

func (r *Registry) entriesLocked() ([]Entry, error) {
	snap, err := r.m.Snapshot()
	if err != nil {
		return nil, wrapErr(FailMapOp, "entries", err)
	}
	entries := make([]Entry, 0, len(snap))
	var invalid []string
	for k, v := range snap {
		pid, err := strconv.Atoi(k)
		if err != nil || pid <= 0 {
			r.logger.Warn("purging registry entry with invalid key", "key", k)
			invalid = append(invalid, k)
			continue
		}
		rec, err := task.Unmarshal(v)
		if err != nil {
			r.logger.Warn("purging undecodable registry entry", "pid", pid, "error", err)
			invalid = append(invalid, k)
			continue
		}
		entries = append(entries, Entry{PID: pid, Key: k, Record: rec})
	}
	if len(invalid) > 0 {
		if err := r.m.DeleteBatch(invalid); err != nil {
			return nil, wrapErr(FailMapOp, "entries", err)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PID < entries[j].PID })
	return entries, nil
}

func (r *Registry) getLocked(pid int) (task.Record, error) {
	data, ok, err := r.m.Get(key(pid))
	if err != nil {
		return task.Record{}, wrapErr(FailMapOp, "get", err)
	}
	if !ok {
		return task.Record{}, fmt.Errorf("pid %d: %w", pid, ErrTaskNotFound)
	}
	rec, err := task.Unmarshal(data)
	if err != nil {
		return task.Record{}, wrapErr(FailCodec, "get", err)
	}
	return rec, nil
}

func (r *Registry) putLocked(op string, pid int, rec task.Record) error {
	data, err := rec.Marshal()
	if err != nil {
		return wrapErr(FailCodec, op, err)
	}
	if err := r.m.Put(key(pid), data); err != nil {
		return wrapErr(FailMapOp, op, err)
	}
	return nil
}

// key is the canonical string form of a pid.
func key(pid int) string { return strconv.Itoa(pid) }
