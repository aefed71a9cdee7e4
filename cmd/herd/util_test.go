package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/haeun-lim/herd/internal/registry"
	"github.com/haeun-lim/herd/internal/task"
)

func TestFormatAge(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{90 * time.Minute, "1h30m0s"},
		{150 * time.Second, "2m30s"},
		{1500 * time.Millisecond, "1.5s"},
		{-time.Second, "0s"},
	}
	for _, tc := range cases {
		if got := formatAge(tc.in); got != tc.want {
			t.Errorf("formatAge(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPrintTaskTable(t *testing.T) {
	rec := task.New(123, "claude", "/tmp/herd-task-123.log", 1, time.Now().Add(-time.Minute))
	var buf bytes.Buffer
	printTaskTable(&buf, []registry.Entry{{PID: 123, Key: "123", Record: rec}})

	out := buf.String()
	for _, want := range []string{"PID", "AGENT", "claude", "running", "/tmp/herd-task-123.log"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	// Running tasks have no result yet.
	if !strings.Contains(out, "-") {
		t.Errorf("empty result not rendered as dash:\n%s", out)
	}
}
