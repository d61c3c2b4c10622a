package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("SHELLBOX_PORT")
	os.Unsetenv("SHELLBOX_MAX_SANDBOXES")
	os.Unsetenv("SHELLBOX_API_KEY")
	os.Unsetenv("SHELLBOX_EXEC_TIMEOUT_SEC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("expected port 3000, got %d", cfg.Port)
	}
	if cfg.MaxSandboxes != 10 {
		t.Errorf("expected max sandboxes 10, got %d", cfg.MaxSandboxes)
	}
	if cfg.DefaultImage != "docker.io/library/ubuntu:22.04" {
		t.Errorf("unexpected default image %s", cfg.DefaultImage)
	}
	if cfg.ExecTimeoutSec != 60 {
		t.Errorf("expected exec timeout 60, got %d", cfg.ExecTimeoutSec)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("SHELLBOX_PORT", "9999")
	os.Setenv("SHELLBOX_MAX_SANDBOXES", "3")
	os.Setenv("SHELLBOX_API_KEY", "test-key")
	defer func() {
		os.Unsetenv("SHELLBOX_PORT")
		os.Unsetenv("SHELLBOX_MAX_SANDBOXES")
		os.Unsetenv("SHELLBOX_API_KEY")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Port)
	}
	if cfg.MaxSandboxes != 3 {
		t.Errorf("expected max sandboxes 3, got %d", cfg.MaxSandboxes)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("expected API key test-key, got %s", cfg.APIKey)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	os.Setenv("SHELLBOX_PORT", "not-a-port")
	defer os.Unsetenv("SHELLBOX_PORT")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestLoadRejectsZeroCapacity(t *testing.T) {
	os.Setenv("SHELLBOX_MAX_SANDBOXES", "0")
	defer os.Unsetenv("SHELLBOX_MAX_SANDBOXES")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}
