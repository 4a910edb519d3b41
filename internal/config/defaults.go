package config

import "time"

// Default returns a Config with the built-in defaults, before any
// file or environment overlay is applied.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Host: "127.0.0.1",
			Port: 5930,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:  0,
			InitialDelay: Duration(250 * time.Millisecond),
			Multiplier:   2.0,
			MaxDelay:     Duration(10 * time.Second),
		},
		Control: ControlConfig{
			DefaultTimeout: Duration(5 * time.Second),
		},
		Diagnostics: DiagnosticsConfig{
			Addr: "127.0.0.1:8777",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
