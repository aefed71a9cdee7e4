// Package agent names the AI coding agents herd can supervise and resolves
// their executables. The three agents are interchangeable from the
// supervisor's point of view: each is one CLI that reads a prompt, works,
// and exits.
package agent

import (
	"fmt"
	"os"
	"strings"
)

// Agent identifies one supported agent CLI.
type Agent string

const (
	Claude Agent = "claude"
	Codex  Agent = "codex"
	Gemini Agent = "gemini"
)

// All lists the supported agents in display order.
func All() []Agent { return []Agent{Claude, Codex, Gemini} }

// Parse maps a user-supplied name onto an Agent, case-insensitively.
func Parse(s string) (Agent, error) {
	switch Agent(strings.ToLower(strings.TrimSpace(s))) {
	case Claude:
		return Claude, nil
	case Codex:
		return Codex, nil
	case Gemini:
		return Gemini, nil
	}
	return "", fmt.Errorf("unknown agent %q (supported: claude, codex, gemini)", s)
}

// String returns the canonical lowercase name.
func (a Agent) String() string { return string(a) }

// Command is the executable name the agent installs on PATH.
func (a Agent) Command() string { return string(a) }

// BinEnvVar is the environment variable that overrides executable lookup for
// this agent, e.g. CLAUDE_BIN=/opt/claude/bin/claude.
func (a Agent) BinEnvVar() string {
	return strings.ToUpper(string(a)) + "_BIN"
}

// NotFoundError reports that an agent's executable could not be located. The
// message carries the fix because the user sees it verbatim on launch.
type NotFoundError struct {
	Agent Agent
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s executable not found: install the %s CLI or set %s to its path",
		e.Agent, e.Agent, e.Agent.BinEnvVar())
}

// Resolve returns the absolute path of the agent's executable. An explicit
// path in the agent's _BIN variable wins; otherwise PATH is searched with the
// platform's executable-extension rules.
func (a Agent) Resolve() (string, error) {
	if p := os.Getenv(a.BinEnvVar()); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%s points to %q: %w", a.BinEnvVar(), p, err)
		}
		return p, nil
	}
	p, err := lookPath(a.Command())
	if err != nil {
		return "", &NotFoundError{Agent: a}
	}
	return p, nil
}
