// Package logger builds herd's own diagnostic logger. Task output capture is
// separate (the supervisor owns it); this covers what herd itself says about
// sweeps, registrations and launches.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the diagnostic file log, in lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes herd's diagnostic logging.
type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `json:"level" mapstructure:"level"`
	// Dir enables an additional rotating file log herd.log under Dir.
	Dir        string `json:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// New builds the logger: colored text on stderr when it is a terminal, plain
// text otherwise, plus a rotating file copy when Dir is configured.
func New(c Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.slogLevel()}

	var console slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		console = NewColorTextHandler(os.Stderr, opts, true)
	} else {
		console = slog.NewTextHandler(os.Stderr, opts)
	}

	if c.Dir == "" {
		return slog.New(console)
	}
	file := slog.NewTextHandler(c.fileWriter(), opts)
	return slog.New(multiHandler{console, file})
}

// fileWriter returns the rotating writer for the diagnostic file log.
func (c Config) fileWriter() io.Writer {
	return &lj.Logger{
		Filename:   filepath.Join(c.Dir, "herd.log"),
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func (c Config) slogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// multiHandler fans one record out to every destination.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
