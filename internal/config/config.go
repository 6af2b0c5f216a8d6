// Package config holds the quasar client configuration: sandbox endpoint,
// cache limits, loader tuning, and daemon settings. Files may be JSON or
// YAML (chosen by extension); environment variables override both.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SandboxConfig holds remote sandbox API settings.
type SandboxConfig struct {
	URL            string `json:"url" yaml:"url"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	FetchTimeoutMs int64  `json:"fetch_timeout_ms" yaml:"fetch_timeout_ms"`
}

// CacheConfig holds file cache limits.
type CacheConfig struct {
	MaxItems      int   `json:"max_items" yaml:"max_items"`
	MaxTotalBytes int64 `json:"max_total_bytes" yaml:"max_total_bytes"`
}

// LoaderConfig holds load pipeline tuning.
type LoaderConfig struct {
	DebounceMs     int64 `json:"debounce_ms" yaml:"debounce_ms"`
	PreloadDelayMs int64 `json:"preload_delay_ms" yaml:"preload_delay_ms"`
}

// DaemonConfig holds daemon-specific settings.
type DaemonConfig struct {
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
	LoadLogPath string `json:"load_log_path" yaml:"load_log_path"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Service  string `json:"service" yaml:"service"`
}

// Config is the central configuration struct embedding all component configs.
type Config struct {
	Sandbox   SandboxConfig   `json:"sandbox" yaml:"sandbox"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Loader    LoaderConfig    `json:"loader" yaml:"loader"`
	Daemon    DaemonConfig    `json:"daemon" yaml:"daemon"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			URL:            "http://localhost:8090",
			FetchTimeoutMs: 10_000,
		},
		Cache: CacheConfig{
			MaxItems:      100,
			MaxTotalBytes: 50 * 1024 * 1024,
		},
		Loader: LoaderConfig{
			DebounceMs:     150,
			PreloadDelayMs: 500,
		},
		Daemon: DaemonConfig{
			MetricsAddr: "",
			LogLevel:    "info",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Service: "quasar",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by
// extension. Unset fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json config: %w", err)
		}
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("QUASAR_SANDBOX_URL"); v != "" {
		cfg.Sandbox.URL = v
	}
	if v := os.Getenv("QUASAR_API_KEY"); v != "" {
		cfg.Sandbox.APIKey = v
	}
	if v := os.Getenv("QUASAR_FETCH_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sandbox.FetchTimeoutMs = n
		}
	}
	if v := os.Getenv("QUASAR_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxItems = n
		}
	}
	if v := os.Getenv("QUASAR_CACHE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.MaxTotalBytes = n
		}
	}
	if v := os.Getenv("QUASAR_METRICS_ADDR"); v != "" {
		cfg.Daemon.MetricsAddr = v
	}
	if v := os.Getenv("QUASAR_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("QUASAR_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
		cfg.Telemetry.Enabled = true
	}
}
