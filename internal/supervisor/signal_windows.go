//go:build windows

package supervisor

import "os"

// Windows delivers console control events, not Unix signals; the only
// portable reaction to an interrupt is terminating the child.
func forwardedSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

func forwardSignal(pid int, _ os.Signal) {
	_ = Terminate(pid)
}
