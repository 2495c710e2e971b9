// Package config loads the gateway's configuration from a YAML file with
// environment variable overrides, adapted from the CLI tool's config
// loader (same load-then-override-then-validate shape, pared back to
// this daemon's flat field set — no profiles, since a gateway binds to
// exactly one backend and one serial port).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/donghyeon/scaleledger-gateway/pkg/errorsx"

	"gopkg.in/yaml.v3"
)

// Config holds everything the gateway needs to run.
type Config struct {
	BaseURL             string        `yaml:"base_url"`
	SerialPort          string        `yaml:"serial_port"`
	DeviceID            int           `yaml:"device_id"`
	DBPath              string        `yaml:"db_path"`
	LogLevel            string        `yaml:"log_level"`
	PollingInterval     time.Duration `yaml:"polling_interval"`
	SerialRetryInterval time.Duration `yaml:"serial_retry_interval"`
	AgentRetryInterval  time.Duration `yaml:"agent_retry_interval"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
}

// Defaults match the intervals spec.md fixes for the worker and agent.
func Defaults() Config {
	return Config{
		BaseURL:             "http://localhost:8000",
		SerialPort:          "/dev/ttyUSB0",
		DeviceID:            0,
		DBPath:              defaultDBPath(),
		LogLevel:            "info",
		PollingInterval:     100 * time.Millisecond,
		SerialRetryInterval: 10 * time.Second,
		AgentRetryInterval:  5 * time.Second,
		HeartbeatInterval:   30 * time.Second,
	}
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "scaleledger-gateway", "gateway.db")
}

// GetConfigPath returns the default config file path.
func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "scaleledger-gateway", "config.yaml"), nil
}

// Load reads the config file at path (if it exists), applies environment
// overrides, and validates the result. An empty path uses the default
// location.
func Load(path string) (*Config, error) {
	if path == "" {
		defaultPath, err := GetConfigPath()
		if err != nil {
			return nil, errorsx.ConfigError("failed to resolve config path", err)
		}
		path = defaultPath
	}

	cfg := Defaults()
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}
	applyEnvironmentOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		// No config file is fine: defaults + env vars may be enough.
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errorsx.ConfigError("failed to read config file", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errorsx.ConfigError("failed to parse config file", err)
	}
	return nil
}

func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("GATEWAY_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("GATEWAY_SERIAL_PORT"); v != "" {
		cfg.SerialPort = v
	}
	if v := os.Getenv("GATEWAY_DEVICE_ID"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.DeviceID = parsed
		}
	}
	if v := os.Getenv("GATEWAY_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GATEWAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GATEWAY_POLLING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollingInterval = d
		}
	}
	if v := os.Getenv("GATEWAY_SERIAL_RETRY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SerialRetryInterval = d
		}
	}
	if v := os.Getenv("GATEWAY_AGENT_RETRY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AgentRetryInterval = d
		}
	}
	if v := os.Getenv("GATEWAY_HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HeartbeatInterval = d
		}
	}
}

func validate(cfg *Config) error {
	if cfg.BaseURL == "" {
		return errorsx.New(errorsx.ExitCodeConfig, "base_url not configured. Set it in the config file or GATEWAY_BASE_URL")
	}
	if cfg.SerialPort == "" {
		return errorsx.New(errorsx.ExitCodeConfig, "serial_port not configured. Set it in the config file or GATEWAY_SERIAL_PORT")
	}
	if cfg.DeviceID < 0 || cfg.DeviceID > 9 {
		return errorsx.New(errorsx.ExitCodeConfig, "device_id must be between 0 and 9")
	}
	return nil
}
