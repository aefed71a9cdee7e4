//go:build !windows

package supervisor

import (
	"errors"
	"syscall"
)

// Alive reports whether pid refers to a live process. EPERM still means the
// process exists; it just belongs to someone else.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Terminate sends SIGTERM to pid's process group when one exists, then to the
// process itself. A process that is already gone is not an error.
func Terminate(pid int) error {
	if pid <= 0 {
		return nil
	}
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
