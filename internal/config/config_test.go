package config

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "herd.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load without file: %v", err)
	}
	if cfg.WaitInterval != 2*time.Second {
		t.Fatalf("wait_interval = %v", cfg.WaitInterval)
	}
	if cfg.MaxRecordAge != 12*time.Hour {
		t.Fatalf("max_record_age = %v", cfg.MaxRecordAge)
	}
	if cfg.History.DSN != "" {
		t.Fatalf("history dsn default = %q", cfg.History.DSN)
	}
	if cfg.Server.BasePath != "/api" {
		t.Fatalf("server base_path = %q", cfg.Server.BasePath)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, `
debug = true
wait_interval = "500ms"
max_record_age = "1h"
task_log_dir = "/var/log/herd"
env = ["FOO=bar"]

[log]
level = "warn"
dir = "/tmp/herd-logs"

[history]
dsn = "sqlite:///tmp/history.db"

[metrics]
enabled = true
listen = ":9999"

[server]
listen = ":8000"
base_path = "/monitor"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Debug || cfg.WaitInterval != 500*time.Millisecond || cfg.MaxRecordAge != time.Hour {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.TaskLogDir != "/var/log/herd" {
		t.Fatalf("task_log_dir = %q", cfg.TaskLogDir)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Dir != "/tmp/herd-logs" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.History.DSN != "sqlite:///tmp/history.db" {
		t.Fatalf("history = %+v", cfg.History)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != ":9999" {
		t.Fatalf("metrics = %+v", cfg.Metrics)
	}
	if cfg.Server.Listen != ":8000" || cfg.Server.BasePath != "/monitor" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	// Debug folds into the logger level.
	if cfg.LoggerConfig().Level != "debug" {
		t.Fatalf("logger level = %q", cfg.LoggerConfig().Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HERD_DEBUG", "true")
	t.Setenv("HERD_WAIT_INTERVAL", "250ms")
	t.Setenv("HERD_HISTORY_DSN", "postgres://localhost/herd")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Debug {
		t.Fatal("HERD_DEBUG not applied")
	}
	if cfg.WaitInterval != 250*time.Millisecond {
		t.Fatalf("wait_interval = %v", cfg.WaitInterval)
	}
	if cfg.History.DSN != "postgres://localhost/herd" {
		t.Fatalf("history dsn = %q", cfg.History.DSN)
	}
}

func TestValidateRejectsNonPositiveIntervals(t *testing.T) {
	for _, body := range []string{
		`wait_interval = "0s"`,
		`max_record_age = "-1h"`,
	} {
		path := writeConfig(t, body)
		if _, err := Load(path); err == nil {
			t.Errorf("config %q should be rejected", body)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestGlobalEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "agent.env")
	if err := os.WriteFile(envFile, []byte("# fixture\nA=from-file\nB=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		Env:      []string{"B=from-config"},
		EnvFiles: []string{envFile},
	}
	got, err := cfg.GlobalEnv()
	if err != nil {
		t.Fatalf("global env: %v", err)
	}
	sort.Strings(got)
	want := []string{"A=from-file", "B=from-config"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("env = %v, want %v", got, want)
	}
}

func TestGlobalEnvMissingFile(t *testing.T) {
	cfg := Config{EnvFiles: []string{filepath.Join(t.TempDir(), "nope.env")}}
	if _, err := cfg.GlobalEnv(); err == nil {
		t.Fatal("expected error for missing env file")
	}
}
