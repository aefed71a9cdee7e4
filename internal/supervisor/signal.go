package supervisor

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// The handler is installed once per process and forwards to whichever child
// is currently armed. An atomic target instead of per-run handlers keeps
// re-installation races out of repeated supervisions in one process.
var (
	forwardTarget atomic.Int64
	installOnce   sync.Once
)

// armForwarding routes the supervisor's own termination signals to pid until
// the returned release is called. Release only disarms if the target is still
// this pid, so overlapping supervisions cannot clear each other.
func armForwarding(pid int) (release func()) {
	installOnce.Do(installForwarder)
	forwardTarget.Store(int64(pid))
	return func() {
		forwardTarget.CompareAndSwap(int64(pid), 0)
	}
}

func installForwarder() {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, forwardedSignals()...)
	go func() {
		for sig := range ch {
			if pid := int(forwardTarget.Load()); pid > 0 {
				forwardSignal(pid, sig)
			}
		}
	}()
}
