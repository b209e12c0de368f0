// Package logging sets up one structured logger per pipeline subsystem, each
// independently leveled so a misbehaving stage can be turned up without
// drowning the rest of the session in noise.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config is the "logging" shaped configuration: a global level/format plus
// optional per-module overrides (module names match the Subsystem constants).
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"` // "text" or "json"
	Modules map[string]string `toml:"modules"`
}

// Subsystem names the pipeline component a logger belongs to.
type Subsystem string

const (
	Capture    Subsystem = "capture"
	Transform  Subsystem = "transform"
	Encode     Subsystem = "encode"
	Fanout     Subsystem = "fanout"
	Sink       Subsystem = "sink"
	Controller Subsystem = "controller"
	IPC        Subsystem = "ipc"
	CLI        Subsystem = "cli"
)

var (
	mu          sync.RWMutex
	cfg         Config
	initialized bool
	loggers     = make(map[Subsystem]*slog.Logger)
	levelVars   = make(map[Subsystem]*slog.LevelVar)
)

// Initialize applies cfg to the global default logger and to any
// per-subsystem loggers already created via For.
func Initialize(config Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = config
	initialized = true

	globalLevel := parseLevel(config.Level, slog.LevelInfo)

	for sub, lv := range levelVars {
		lv.Set(resolveLevel(config, sub, globalLevel))
	}

	defaultLevel := &slog.LevelVar{}
	defaultLevel.Set(globalLevel)
	slog.SetDefault(slog.New(newHandler(config.Format, defaultLevel)))
}

// For returns (creating if needed) the logger for the given subsystem.
func For(sub Subsystem) *slog.Logger {
	mu.RLock()
	if l, ok := loggers[sub]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[sub]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	globalLevel := slog.LevelInfo
	format := "text"
	if initialized {
		globalLevel = parseLevel(cfg.Level, slog.LevelInfo)
		format = cfg.Format
	}
	lv.Set(resolveLevel(cfg, sub, globalLevel))

	logger := slog.New(newHandler(format, lv)).With("subsystem", string(sub))
	loggers[sub] = logger
	levelVars[sub] = lv
	return logger
}

func resolveLevel(config Config, sub Subsystem, fallback slog.Level) slog.Level {
	if s, ok := config.Modules[string(sub)]; ok {
		return parseLevel(s, fallback)
	}
	return fallback
}

func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

func parseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
