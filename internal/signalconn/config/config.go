// Package config loads connection timeout and logging configuration
// from command-line flags and environment variables, in the same
// flag-then-env-override shape as the teacher's signaling config
// loader (internal/signaling/config/config.go).
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds the runtime configuration for a signalconn-based
// application (e.g. cmd/signaldemo).
type Config struct {
	// TimeoutSetup bounds how long a connection waits in a setup
	// phase (PENDING_OUTGOING, PENDING_INCOMING, CONFLICT_RESOLUTION,
	// UPDATE_SENT, UPDATE_RECV) before closing with TIMED_OUT.
	TimeoutSetup time.Duration

	// TimeoutTerm bounds how long a connection waits for the peer's
	// HANGUP response after sending its own HANGUP.
	TimeoutTerm time.Duration

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Load parses flags and applies environment variable overrides,
// flags first then env, matching the teacher's config.Load precedence.
func Load() *Config {
	cfg := &Config{
		TimeoutSetup: 30 * time.Second,
		TimeoutTerm:  5 * time.Second,
		LogLevel:     "debug",
	}

	var timeoutSetupMs, timeoutTermMs int
	flag.IntVar(&timeoutSetupMs, "timeout-setup", int(cfg.TimeoutSetup/time.Millisecond), "setup timeout in milliseconds")
	flag.IntVar(&timeoutTermMs, "timeout-term", int(cfg.TimeoutTerm/time.Millisecond), "termination timeout in milliseconds")
	flag.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.Parse()

	cfg.TimeoutSetup = time.Duration(timeoutSetupMs) * time.Millisecond
	cfg.TimeoutTerm = time.Duration(timeoutTermMs) * time.Millisecond

	if v := os.Getenv("SIGNALCONN_TIMEOUT_SETUP"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSetup = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("SIGNALCONN_TIMEOUT_TERM"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutTerm = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("SIGNALCONN_LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}
