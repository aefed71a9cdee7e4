//go:build windows

package ptree

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// procStartUnix returns the process start time as Unix seconds, or 0 when
// unavailable. gopsutil resolves it from the process creation time.
func procStartUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}
