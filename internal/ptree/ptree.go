// Package ptree resolves OS process ancestry. The registry namespaces its
// shared region by the calling process's root ancestor, so every invocation
// spawned under the same shell or orchestrator lands in the same namespace
// while unrelated sessions stay disjoint.
package ptree

import (
	"os"
	"sync"
)

// maxHops bounds the ancestry walk so traversal terminates even against a
// corrupt or cyclic process table.
const maxHops = 50

// Inspector is the platform strategy for process lookups.
// Implementations must be safe for concurrent use.
type Inspector interface {
	// ParentPID returns the parent pid of pid.
	ParentPID(pid int) (int, error)
	// ProcessName returns the executable name of pid.
	ProcessName(pid int) (string, error)
	// StartUnix returns the process start time as Unix seconds, or 0 when
	// unavailable.
	StartUnix(pid int) int64
}

// Ancestry is a snapshot of one ancestry walk. Chain[0] is always the pid
// the walk started from; RootParent is the last resolvable ancestor before a
// platform root pid.
type Ancestry struct {
	Chain      []int
	RootParent int
	Depth      int
}

// Walk resolves the ancestor chain of pid using the platform inspector.
// It never fails: a lookup error truncates the chain at that point, and the
// worst case is a single-element chain holding pid itself.
func Walk(pid int) Ancestry { return WalkWith(defaultInspector, pid) }

// WalkWith is Walk with an explicit inspector, for tests.
func WalkWith(ins Inspector, pid int) Ancestry {
	chain := []int{pid}
	cur := pid
	for len(chain) < maxHops {
		parent, err := ins.ParentPID(cur)
		if err != nil {
			break
		}
		// Self-loops and pid 0 mean the table has nothing further to say.
		if parent == cur || parent == 0 || isRootPID(parent) {
			break
		}
		chain = append(chain, parent)
		cur = parent
	}
	return Ancestry{Chain: chain, RootParent: chain[len(chain)-1], Depth: len(chain)}
}

var (
	rootOnce sync.Once
	rootPID  int
)

// CachedRoot resolves the current process's root ancestor exactly once per
// process lifetime. Each hop costs at least one syscall and this value sits
// on the hot path of every registry connection.
func CachedRoot() int {
	rootOnce.Do(func() { rootPID = Walk(os.Getpid()).RootParent })
	return rootPID
}

// StartUnix reports the start time of pid via the platform inspector.
func StartUnix(pid int) int64 { return defaultInspector.StartUnix(pid) }

// Name reports the executable name of pid, or "" when unresolvable.
func Name(pid int) string {
	n, err := defaultInspector.ProcessName(pid)
	if err != nil {
		return ""
	}
	return n
}
