package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the manager.
// Zero values mean "unspecified" and are replaced by defaults in Defaults.
type Config struct {
	SockType string `json:"sock_type" yaml:"sock_type" toml:"sock_type"`
	SockName string `json:"sock_name" yaml:"sock_name" toml:"sock_name"`
	Host     string `json:"host" yaml:"host" toml:"host"`
	Port     string `json:"port" yaml:"port" toml:"port"`

	// Debug disables the accept timeout.
	Debug                bool `json:"debug" yaml:"debug" toml:"debug"`
	AcceptTimeoutSeconds int  `json:"accept_timeout_seconds" yaml:"accept_timeout_seconds" toml:"accept_timeout_seconds"`

	WorkerBin       string   `json:"worker_bin" yaml:"worker_bin" toml:"worker_bin"`
	WorkerArgs      []string `json:"worker_args" yaml:"worker_args" toml:"worker_args"`
	ProbeAttempts   int      `json:"probe_attempts" yaml:"probe_attempts" toml:"probe_attempts"`
	ProbeIntervalMS int      `json:"probe_interval_ms" yaml:"probe_interval_ms" toml:"probe_interval_ms"`
	StopGraceMS     int      `json:"stop_grace_ms" yaml:"stop_grace_ms" toml:"stop_grace_ms"`
	StrictScaleDown bool     `json:"strict_scale_down" yaml:"strict_scale_down" toml:"strict_scale_down"`
	StateFile       string   `json:"state_file" yaml:"state_file" toml:"state_file"`
	MemoryBudgetMB  int      `json:"memory_budget_mb" yaml:"memory_budget_mb" toml:"memory_budget_mb"`

	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr" toml:"metrics_addr"`
	LogLevel    string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogJSON     bool   `json:"log_json" yaml:"log_json" toml:"log_json"`
	ProfilePath string `json:"profile_path" yaml:"profile_path" toml:"profile_path"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Validate checks the socket settings: unix needs sock_name, tcp needs port.
func (c Config) Validate() error {
	switch c.SockType {
	case "unix":
		if c.SockName == "" {
			return fmt.Errorf("no socket name given for sock_type unix")
		}
	case "tcp":
		if c.Port == "" {
			return fmt.Errorf("no socket port given for sock_type tcp")
		}
	case "":
		return fmt.Errorf("sock_type is required")
	default:
		return fmt.Errorf("unsupported sock_type %q", c.SockType)
	}
	if c.ProbeAttempts < 0 || c.ProbeIntervalMS < 0 || c.StopGraceMS < 0 || c.AcceptTimeoutSeconds < 0 {
		return fmt.Errorf("negative timing values are not allowed")
	}
	return nil
}
