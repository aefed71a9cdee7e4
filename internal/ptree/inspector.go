package ptree

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

var defaultInspector Inspector = psInspector{}

// psInspector answers lookups from the OS process table via gopsutil.
// Start-time resolution is platform specific; see procstart_*.go.
type psInspector struct{}

func (psInspector) ParentPID(pid int) (int, error) {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	parent, err := p.Ppid()
	if err != nil {
		return 0, err
	}
	return int(parent), nil
}

func (psInspector) ProcessName(pid int) (string, error) {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return p.Name()
}

func (psInspector) StartUnix(pid int) int64 { return procStartUnix(pid) }
