package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Transport.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Transport.Host)
	}
	if cfg.Transport.Port != 5930 {
		t.Errorf("expected default port 5930, got %d", cfg.Transport.Port)
	}
	if cfg.Reconnect.InitialDelay.Duration() != 250*time.Millisecond {
		t.Errorf("expected initial delay 250ms, got %s", cfg.Reconnect.InitialDelay.Duration())
	}
	if cfg.Reconnect.Multiplier != 2.0 {
		t.Errorf("expected multiplier 2.0, got %v", cfg.Reconnect.Multiplier)
	}
	if cfg.Control.DefaultTimeout.Duration() != 5*time.Second {
		t.Errorf("expected control timeout 5s, got %s", cfg.Control.DefaultTimeout.Duration())
	}
	if cfg.Diagnostics.Addr != "127.0.0.1:8777" {
		t.Errorf("expected default diag addr 127.0.0.1:8777, got %s", cfg.Diagnostics.Addr)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected info/json logging defaults, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadValidConfigFile(t *testing.T) {
	yaml := `
transport:
  host: "192.168.1.50"
  port: 5931
reconnect:
  max_attempts: 5
  initial_delay: "500ms"
  max_delay: "30s"
logging:
  level: "debug"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "spicehostd.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Transport.Host != "192.168.1.50" {
		t.Errorf("expected host 192.168.1.50, got %s", cfg.Transport.Host)
	}
	if cfg.Transport.Port != 5931 {
		t.Errorf("expected port 5931, got %d", cfg.Transport.Port)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("expected max_attempts 5, got %d", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Reconnect.InitialDelay.Duration() != 500*time.Millisecond {
		t.Errorf("expected initial_delay 500ms, got %s", cfg.Reconnect.InitialDelay.Duration())
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Untouched fields keep their defaults.
	if cfg.Diagnostics.Addr != "127.0.0.1:8777" {
		t.Errorf("expected diag addr to retain default, got %s", cfg.Diagnostics.Addr)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/spicehostd.yaml")
	if err != nil {
		t.Fatalf("Load() with missing path should not error, got %v", err)
	}
	if cfg.Transport.Port != 5930 {
		t.Errorf("expected default port when file is absent, got %d", cfg.Transport.Port)
	}
}

func TestLoadEmptyPathSkipsFileLayer(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") should not error, got %v", err)
	}
	if cfg.Transport.Host != "127.0.0.1" {
		t.Errorf("expected default host, got %s", cfg.Transport.Host)
	}
}

func TestEnvOverridesFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spicehostd.yaml")
	os.WriteFile(path, []byte("transport:\n  port: 6000\n"), 0644)

	t.Setenv("WINRUN_SPICE_PORT", "7000")
	t.Setenv("WINRUN_SPICE_HOST", "10.0.0.1")
	t.Setenv("WINRUN_SPICE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Transport.Port != 7000 {
		t.Errorf("expected env port 7000 to win over file's 6000, got %d", cfg.Transport.Port)
	}
	if cfg.Transport.Host != "10.0.0.1" {
		t.Errorf("expected env host to win, got %s", cfg.Transport.Host)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env log level to win, got %s", cfg.Logging.Level)
	}
}

func TestInvalidPortEnvFallsBackToResolvedValue(t *testing.T) {
	t.Setenv("WINRUN_SPICE_PORT", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Transport.Port != 5930 {
		t.Errorf("expected invalid port env to leave default 5930 intact, got %d", cfg.Transport.Port)
	}
}

func TestShmFdEnvSetsUseSharedMemoryEvenAtDescriptorZero(t *testing.T) {
	t.Setenv("WINRUN_SPICE_SHM_FD", "0")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.Transport.UseSharedMemory {
		t.Fatal("expected UseSharedMemory to be set when WINRUN_SPICE_SHM_FD is present, even at fd 0")
	}
	if cfg.Transport.SharedFD != 0 {
		t.Errorf("expected SharedFD 0, got %d", cfg.Transport.SharedFD)
	}
}

func TestNoShmFdEnvLeavesUseSharedMemoryFalse(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Transport.UseSharedMemory {
		t.Fatal("expected UseSharedMemory false when WINRUN_SPICE_SHM_FD is unset")
	}
}

func TestEnvReconnectTuning(t *testing.T) {
	t.Setenv("WINRUN_SPICE_RECONNECT_MAX_ATTEMPTS", "3")
	t.Setenv("WINRUN_SPICE_RECONNECT_MULTIPLIER", "1.5")
	t.Setenv("WINRUN_SPICE_RECONNECT_MAX_DELAY", "1m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Reconnect.MaxAttempts != 3 {
		t.Errorf("expected max attempts 3, got %d", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Reconnect.Multiplier != 1.5 {
		t.Errorf("expected multiplier 1.5, got %v", cfg.Reconnect.Multiplier)
	}
	if cfg.Reconnect.MaxDelay.Duration() != time.Minute {
		t.Errorf("expected max delay 1m, got %s", cfg.Reconnect.MaxDelay.Duration())
	}
}
