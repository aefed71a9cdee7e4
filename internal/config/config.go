// Package config loads herd's settings from a TOML file with HERD_*
// environment overrides. Everything has a usable default: herd must run with
// no config file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/haeun-lim/herd/internal/logger"
	"github.com/haeun-lim/herd/internal/metrics"
	"github.com/haeun-lim/herd/internal/registry"
)

// Config is the top-level TOML structure.
type Config struct {
	// Debug raises the log level to debug regardless of Log.Level.
	Debug bool `toml:"debug" mapstructure:"debug"`
	// WaitInterval is the poll interval of the wait command.
	WaitInterval time.Duration `toml:"wait_interval" mapstructure:"wait_interval"`
	// MaxRecordAge bounds how long a task may stay registered before the
	// sweep reclaims it.
	MaxRecordAge time.Duration `toml:"max_record_age" mapstructure:"max_record_age"`
	// TaskLogDir holds the per-task capture files; empty means the OS temp dir.
	TaskLogDir string `toml:"task_log_dir" mapstructure:"task_log_dir"`

	// Env entries and env files are passed to every launched agent.
	// Precedence: OS env (when enabled), then env_files in order, then env.
	Env      []string `toml:"env" mapstructure:"env"`
	EnvFiles []string `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool     `toml:"use_os_env" mapstructure:"use_os_env"`

	Log     logger.Config `toml:"log" mapstructure:"log"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
}

// HistoryConfig selects the task history sink.
type HistoryConfig struct {
	// DSN picks the backend: sqlite path, postgres:// or clickhouse:// URL.
	// Empty disables history export.
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// MetricsConfig controls the Prometheus endpoint and resource sampling.
type MetricsConfig struct {
	Enabled bool                `toml:"enabled" mapstructure:"enabled"`
	Listen  string              `toml:"listen" mapstructure:"listen"`
	Usage   metrics.UsageConfig `toml:"usage" mapstructure:"usage"`
}

// ServerConfig controls the monitoring HTTP API.
type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// Default returns the configuration herd runs with when no file is given.
func Default() Config {
	return Config{
		WaitInterval: 2 * time.Second,
		MaxRecordAge: registry.DefaultMaxRecordAge,
		Metrics: MetricsConfig{
			Listen: ":9464",
			Usage:  metrics.UsageConfig{Interval: 15 * time.Second},
		},
		Server: ServerConfig{
			Listen:   ":8420",
			BasePath: "/api",
		},
	}
}

// Load reads path (optional) and applies HERD_* environment overrides, e.g.
// HERD_DEBUG=1, HERD_HISTORY_DSN=..., HERD_WAIT_INTERVAL=500ms.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("herd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers defaults so AutomaticEnv can override keys that never
// appear in the file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("debug", cfg.Debug)
	v.SetDefault("wait_interval", cfg.WaitInterval)
	v.SetDefault("max_record_age", cfg.MaxRecordAge)
	v.SetDefault("task_log_dir", cfg.TaskLogDir)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.dir", cfg.Log.Dir)
	v.SetDefault("history.dsn", cfg.History.DSN)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("metrics.usage.enabled", cfg.Metrics.Usage.Enabled)
	v.SetDefault("metrics.usage.interval", cfg.Metrics.Usage.Interval)
	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.base_path", cfg.Server.BasePath)
}

func (c Config) validate() error {
	if c.WaitInterval <= 0 {
		return fmt.Errorf("wait_interval must be positive, got %v", c.WaitInterval)
	}
	if c.MaxRecordAge <= 0 {
		return fmt.Errorf("max_record_age must be positive, got %v", c.MaxRecordAge)
	}
	return nil
}

// LoggerConfig returns the diagnostic logging config with the debug flag
// folded in.
func (c Config) LoggerConfig() logger.Config {
	lc := c.Log
	if c.Debug {
		lc.Level = "debug"
	}
	return lc
}

// GlobalEnv merges the env herd passes to every agent.
// Precedence: OS env (when enabled) provides the base; env_files apply in
// order; the env list overrides last.
func (c Config) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	if c.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
