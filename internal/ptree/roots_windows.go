//go:build windows

package ptree

// Windows parks orphans and system processes under the Idle (0), init-like
// System (4) and occasionally pid 1 pseudo-processes.
func isRootPID(pid int) bool { return pid == 0 || pid == 1 || pid == 4 }
