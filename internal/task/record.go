// Package task defines the persisted state of one supervised agent task.
// Records are stored as JSON in the shared registry region and read back by
// unrelated processes, so the wire shape must stay backward compatible.
package task

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Status is the lifecycle state of a task record. The only valid transition
// is Running -> CompletedUnread; it happens exactly once.
type Status string

const (
	StatusRunning         Status = "running"
	StatusCompletedUnread Status = "completed_but_unread"
)

// CleanupReason records why the sweep reclaimed an entry.
type CleanupReason string

const (
	ReasonProcessExited  CleanupReason = "process_exited"
	ReasonManagerMissing CleanupReason = "manager_missing"
	ReasonTimeout        CleanupReason = "timeout"
)

// WorktreeInfo describes an isolated working copy created for a task.
type WorktreeInfo struct {
	Path   string `json:"path"`
	Branch string `json:"branch,omitempty"`
	Commit string `json:"commit,omitempty"`
}

// Record is the shared-registry entry for one supervised child process.
// ProcessChain, RootParentPID and TreeDepth are an ancestry snapshot taken at
// registration time; they are never re-verified. ProcStartUnix is the child's
// OS start time and is used to corroborate liveness against PID reuse.
type Record struct {
	Agent         string         `json:"agent"`
	StartedAt     time.Time      `json:"started_at"`
	LogID         string         `json:"log_id"`
	LogPath       string         `json:"log_path"`
	ManagerPID    int            `json:"manager_pid,omitempty"`
	Status        Status         `json:"status"`
	Result        string         `json:"result,omitempty"`
	ExitCode      *int           `json:"exit_code,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CleanupReason CleanupReason  `json:"cleanup_reason,omitempty"`
	ProcessChain  []int          `json:"process_chain,omitempty"`
	RootParentPID int            `json:"root_parent_pid,omitempty"`
	TreeDepth     int            `json:"process_tree_depth,omitempty"`
	TaskID        string         `json:"task_id,omitempty"`
	Worktree      *WorktreeInfo  `json:"worktree_info,omitempty"`
	ProcStartUnix int64          `json:"proc_start_unix,omitempty"`
}

// New builds a Running record for a freshly spawned child.
// The log id is the child's pid in text form.
func New(pid int, agent, logPath string, managerPID int, startedAt time.Time) Record {
	return Record{
		Agent:      agent,
		StartedAt:  startedAt,
		LogID:      strconv.Itoa(pid),
		LogPath:    logPath,
		ManagerPID: managerPID,
		Status:     StatusRunning,
	}
}

// MarkCompleted applies the single Running -> CompletedUnread transition,
// stamping result, exit code and completion time together.
func (r *Record) MarkCompleted(result string, exitCode *int, completedAt time.Time) {
	r.Status = StatusCompletedUnread
	r.Result = result
	r.ExitCode = exitCode
	at := completedAt
	r.CompletedAt = &at
}

// WithCleanupReason is the sweep variant of the completion transition. Any
// result or exit code recorded earlier is preserved; otherwise the completion
// time defaults to now and result/exit code stay unset.
func (r Record) WithCleanupReason(reason CleanupReason, now time.Time) Record {
	out := r
	out.Status = StatusCompletedUnread
	out.CleanupReason = reason
	if out.CompletedAt == nil {
		at := now
		out.CompletedAt = &at
	}
	return out
}

// Age reports how long the task has been registered.
func (r Record) Age(now time.Time) time.Duration { return now.Sub(r.StartedAt) }

// Running reports whether the record still represents a live supervision.
func (r Record) Running() bool { return r.Status == StatusRunning }

// Marshal encodes the record for storage in the shared region.
func (r Record) Marshal() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode task record: %w", err)
	}
	return b, nil
}

// Unmarshal decodes a record read back from the shared region. A payload that
// decodes but carries no status is treated as corrupt, matching the registry's
// self-healing contract.
func Unmarshal(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode task record: %w", err)
	}
	if r.Status != StatusRunning && r.Status != StatusCompletedUnread {
		return Record{}, fmt.Errorf("decode task record: invalid status %q", r.Status)
	}
	return r, nil
}
