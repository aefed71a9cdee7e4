//go:build windows

package agent

import "os/exec"

// Agent CLIs on Windows are usually npm shims, so the .cmd wrapper is tried
// before the bare name and the native extensions.
func lookPath(name string) (string, error) {
	var lastErr error
	for _, candidate := range []string{name + ".cmd", name + ".bat", name + ".exe", name} {
		p, err := exec.LookPath(candidate)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return "", lastErr
}
