package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/solhaven/agenthost/rscope"
)

const (
	defaultListenAddr    = ":8080"
	defaultBlockingLimit = 8

	envListenAddr   = "AGENTHOST_LISTEN_ADDR"
	envLogLevel     = "AGENTHOST_LOG_LEVEL"
	envDebugActions = "AGENTHOST_DEBUG_ACTIONS"
	envMaxBlocking  = "AGENTHOST_MAX_BLOCKING"
	envConfigFile   = "AGENTHOST_CONFIG"
)

// Config holds runtime host configuration. Values come from an
// optional YAML file, with environment variables taking precedence.
type Config struct {
	ListenAddr   string
	LogLevel     slog.Level
	DebugActions bool
	MaxBlocking  int64
}

// fileConfig is the YAML schema for the optional config file.
type fileConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	LogLevel     string `yaml:"log_level"`
	DebugActions *bool  `yaml:"debug_actions"`
	MaxBlocking  *int64 `yaml:"max_blocking"`
}

// Load reads configuration from the file named by AGENTHOST_CONFIG (if
// set) and then from environment variables, which win.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:  defaultListenAddr,
		LogLevel:    slog.LevelInfo,
		MaxBlocking: defaultBlockingLimit,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envDebugActions); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", envDebugActions, err)
		}
		cfg.DebugActions = b
	}
	if v := os.Getenv(envMaxBlocking); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("parse %s: %q is not a positive integer", envMaxBlocking, v)
		}
		cfg.MaxBlocking = n
	}

	return cfg, nil
}

// applyFile overlays values from a YAML config file.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.DebugActions != nil {
		c.DebugActions = *fc.DebugActions
	}
	if fc.MaxBlocking != nil && *fc.MaxBlocking > 0 {
		c.MaxBlocking = *fc.MaxBlocking
	}

	return nil
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

// NewLogger creates a structured JSON logger writing to w at the
// configured level. Records logged with a request context carry the
// ambient request and session ids.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(rscope.NewLogHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})))
}
