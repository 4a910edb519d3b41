package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete spicehostd runtime configuration, resolved
// by Load: built-in defaults, then an optional YAML file, then
// environment variables, which always win.
type Config struct {
	Transport   TransportConfig   `yaml:"transport"`
	Reconnect   ReconnectConfig   `yaml:"reconnect"`
	Control     ControlConfig     `yaml:"control"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Logging     LogConfig         `yaml:"logging"`
}

type TransportConfig struct {
	// UseSharedMemory selects the shared-file-descriptor transport. It is
	// tracked independently of SharedFD because fd 0 is a valid
	// descriptor (spec.md §6 selects shared memory by the *presence* of
	// WINRUN_SPICE_SHM_FD, not by a nonzero value).
	UseSharedMemory bool   `yaml:"use_shared_memory"`
	SharedFD        int    `yaml:"shared_fd"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	TLS             bool   `yaml:"tls"`
	Ticket          string `yaml:"ticket"`
}

type ReconnectConfig struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	Multiplier   float64  `yaml:"multiplier"`
	MaxDelay     Duration `yaml:"max_delay"`
}

type ControlConfig struct {
	DefaultTimeout Duration `yaml:"default_timeout"`
}

type DiagnosticsConfig struct {
	Addr       string `yaml:"addr"`
	ACMEDomain string `yaml:"acme_domain"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration that supports YAML string unmarshaling.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load resolves a Config from built-in defaults, an optional YAML file
// at path (silently skipped if path is empty or unreadable, matching
// the teacher's tolerant file layer), and finally the environment,
// which always overrides both.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("WINRUN_SPICE_SHM_FD"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transport.SharedFD = n
			cfg.Transport.UseSharedMemory = true
		}
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_HOST"); ok {
		cfg.Transport.Host = v
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transport.Port = n
		}
		// Invalid values fall back to whatever was already resolved
		// (default or file value) rather than rejecting startup.
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_TLS"); ok {
		cfg.Transport.TLS = v == "1"
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_TICKET"); ok {
		cfg.Transport.Ticket = v
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_DIAG_ADDR"); ok {
		cfg.Diagnostics.Addr = v
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_DIAG_ACME_DOMAIN"); ok {
		cfg.Diagnostics.ACMEDomain = v
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_RECONNECT_MAX_ATTEMPTS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reconnect.MaxAttempts = n
		}
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_RECONNECT_INITIAL_DELAY"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reconnect.InitialDelay = Duration(d)
		}
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_RECONNECT_MULTIPLIER"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Reconnect.Multiplier = f
		}
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_RECONNECT_MAX_DELAY"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reconnect.MaxDelay = Duration(d)
		}
	}
	if v, ok := os.LookupEnv("WINRUN_SPICE_CONTROL_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Control.DefaultTimeout = Duration(d)
		}
	}
}
