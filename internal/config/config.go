package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the shellbox server.
type Config struct {
	Port   int
	APIKey string

	// Admission
	MaxSandboxes     int // concurrent Starting/Running sandboxes
	AdmissionWaitSec int // how long start may wait for capacity, 0 = fail fast

	// Sandbox defaults
	DefaultImage   string
	ExecTimeoutSec int // default per-command sentinel timeout

	// Trajectory
	TrajectoryLimit int // per-sandbox record bound, 0 = unbounded

	// Auth
	JWTSecret string // sandbox-scoped JWT issuing, empty disables

	// Observability
	DataDir string // per-sandbox SQLite event logs, empty disables
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             3000,
		APIKey:           os.Getenv("SHELLBOX_API_KEY"),
		MaxSandboxes:     envOrDefaultInt("SHELLBOX_MAX_SANDBOXES", 10),
		AdmissionWaitSec: envOrDefaultInt("SHELLBOX_ADMISSION_WAIT_SEC", 0),
		DefaultImage:     envOrDefault("SHELLBOX_DEFAULT_IMAGE", "docker.io/library/ubuntu:22.04"),
		ExecTimeoutSec:   envOrDefaultInt("SHELLBOX_EXEC_TIMEOUT_SEC", 60),
		TrajectoryLimit:  envOrDefaultInt("SHELLBOX_TRAJECTORY_LIMIT", 0),
		JWTSecret:        os.Getenv("SHELLBOX_JWT_SECRET"),
		DataDir:          os.Getenv("SHELLBOX_DATA_DIR"),
	}

	if portStr := os.Getenv("SHELLBOX_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SHELLBOX_PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	if cfg.MaxSandboxes <= 0 {
		return nil, fmt.Errorf("SHELLBOX_MAX_SANDBOXES must be positive, got %d", cfg.MaxSandboxes)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
