// Package config loads application configuration from environment variables
// and builds the structured logger. Configuration is read once at process
// start and not re-validated at runtime.
package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yonglehou/DReAM/internal/dispatch"
)

const (
	defaultListenAddr  = ":8080"
	defaultDBPath      = "dream.db"
	defaultMinWorkers  = 2
	defaultMaxWorkers  = 32
	defaultBackground  = 4
	defaultIdleTimeout = 30 * time.Second

	envListenAddr    = "DREAM_LISTEN_ADDR"
	envDBPath        = "DREAM_DB_PATH"
	envLogLevel      = "DREAM_LOG_LEVEL"
	envStrategy      = "DREAM_POOL_STRATEGY"
	envMinWorkers    = "DREAM_MIN_WORKERS"
	envMaxWorkers    = "DREAM_MAX_WORKERS"
	envBackground    = "DREAM_BACKGROUND_WORKERS"
	envIdleTimeout   = "DREAM_WORKER_IDLE_TIMEOUT"
	envMaxStackBytes = "DREAM_MAX_STACK_BYTES"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	Dispatch   dispatch.Config
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,
		Dispatch: dispatch.Config{
			Strategy:          dispatch.StrategyElastic,
			MinWorkers:        defaultMinWorkers,
			MaxWorkers:        defaultMaxWorkers,
			BackgroundWorkers: defaultBackground,
			IdleTimeout:       defaultIdleTimeout,
		},
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envStrategy); v != "" {
		cfg.Dispatch.Strategy = parseStrategy(v)
	}
	if v := parseIntEnv(envMinWorkers); v > 0 {
		cfg.Dispatch.MinWorkers = v
	}
	if v := parseIntEnv(envMaxWorkers); v > 0 {
		cfg.Dispatch.MaxWorkers = v
	}
	if v := parseIntEnv(envBackground); v > 0 {
		cfg.Dispatch.BackgroundWorkers = v
	}
	if v := os.Getenv(envIdleTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Dispatch.IdleTimeout = d
		}
	}
	if v := parseIntEnv(envMaxStackBytes); v > 0 {
		cfg.Dispatch.MaxStackBytes = v
	}

	return cfg
}

func parseIntEnv(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseStrategy(s string) dispatch.Strategy {
	switch strings.ToLower(s) {
	case string(dispatch.StrategyFixed):
		return dispatch.StrategyFixed
	case string(dispatch.StrategyInPlace):
		return dispatch.StrategyInPlace
	default:
		return dispatch.StrategyElastic
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
