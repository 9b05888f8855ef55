// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "KVRPC_LOG_LEVEL"
	EnvLogNoColor = "KVRPC_LOG_NOCOLOR"
	EnvLogJSON    = "KVRPC_LOG_JSON"
)

type Config struct {
	Level   zerolog.Level
	JSON    bool // one JSON object per line instead of console output
	NoColor bool
	Out     io.Writer // defaults to os.Stderr
}

func DefaultConfig() Config {
	return Config{Level: zerolog.InfoLevel}
}

// New builds a logger from cfg after applying environment overrides.
func New(cfg Config, app string) zerolog.Logger {
	ApplyEnv(&cfg)
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.NoColor,
		}
	}
	return zerolog.New(out).Level(cfg.Level).With().Timestamp().Str("app", app).Logger()
}

// Configure builds the logger and installs it as log.Logger.
func Configure(cfg Config, app string) zerolog.Logger {
	logger := New(cfg, app)
	log.Logger = logger
	return logger
}

// ApplyEnv overrides cfg with KVRPC_LOG_* variables that are set and valid.
func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		cfg.JSON = v
	}
}

// ParseLevel accepts zerolog level names plus a few aliases. ok is false for
// empty or unknown input.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
