//go:build !windows

package supervisor

import (
	"os"
	"syscall"
)

func forwardedSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}
}

// forwardSignal relays sig to the child's process group when one exists,
// falling back to the child itself.
func forwardSignal(pid int, sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return
	}
	if err := syscall.Kill(-pid, s); err == nil {
		return
	}
	_ = syscall.Kill(pid, s)
}
