// Package config loads the orchestrator's configuration from a YAML file,
// following the teacher repo's pattern of an explicit Config struct with a
// LoadOrGenerate entry point and a redacting String() for safe logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceConfig controls the process-level knobs: logging and the address
// the event stream gateway listens on (metrics use MetricsConfig).
type ServiceConfig struct {
	LogLevel           string `yaml:"logLevel"`
	Address            string `yaml:"address"`
	HttpMaxRequestSize int64  `yaml:"httpMaxRequestSize"`
}

// DatabaseConfig points at the single-file embedded store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CredentialsConfig holds global SSH credentials in the config file. They
// are not copied into the store: the scan and rollout engines read global
// credentials only from the Settings table, which the operator API sets.
type CredentialsConfig struct {
	GlobalUsername string       `yaml:"globalUsername"`
	GlobalPassword SecureString `yaml:"globalPassword"`
}

// RolloutConfig holds default rollout parameters. They are not read by the
// rollout engine: the inter-batch pause comes from the Settings table (0
// when unset) and each rollout request carries its own batch size.
type RolloutConfig struct {
	DefaultBatchSize    int `yaml:"defaultBatchSize"`
	DefaultWaitMinutes  int `yaml:"defaultWaitMinutes"`
}

// MetricsConfig controls the address the Prometheus /metrics endpoint
// listens on, kept on its own port from the stream gateway and operator
// API per the teacher's split of mgmt traffic from application traffic.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// APIConfig controls the address the operator command API (internal/apiserver)
// listens on.
type APIConfig struct {
	Address string `yaml:"address"`
}

// Config is the top-level configuration document.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Database    DatabaseConfig    `yaml:"database"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Rollout     RolloutConfig     `yaml:"rollout"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	API         APIConfig         `yaml:"api"`
}

// NewDefault returns a Config with sane defaults, used when no file exists
// yet and directly by tests that don't want to touch disk.
func NewDefault() *Config {
	return &Config{
		Service: ServiceConfig{
			LogLevel:           "info",
			Address:            ":8090",
			HttpMaxRequestSize: 10 << 20,
		},
		Database: DatabaseConfig{
			Path: "data/routerfleet.db",
		},
		Rollout: RolloutConfig{
			DefaultBatchSize:   10,
			DefaultWaitMinutes: 2,
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		API: APIConfig{
			Address: ":8091",
		},
	}
}

// ConfigFile returns the default config file location, overridable by the
// ROUTERFLEET_CONFIG environment variable.
func ConfigFile() string {
	if v := os.Getenv("ROUTERFLEET_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(".", "config", "config.yaml")
}

// LoadOrGenerate reads the config at path, or writes and returns the
// default configuration if no file exists yet.
func LoadOrGenerate(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := NewDefault()
		if writeErr := writeDefault(path, cfg); writeErr != nil {
			return nil, fmt.Errorf("generating default config: %w", writeErr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := NewDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func writeDefault(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROUTERFLEET_GLOBAL_USERNAME"); v != "" {
		cfg.Credentials.GlobalUsername = v
	}
	if v := os.Getenv("ROUTERFLEET_GLOBAL_PASSWORD"); v != "" {
		cfg.Credentials.GlobalPassword = SecureString(v)
	}
}

// String renders the config with every credential redacted, safe to pass
// to a logger.
func (c *Config) String() string {
	redacted := *c
	redacted.Credentials.GlobalPassword = SecureString(redactedPlaceholder)
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Sprintf("<config marshal error: %v>", err)
	}
	return string(data)
}

// ShutdownGracePeriod is the time allotted to drain in-flight HTTP
// connections on each HTTP server (stream gateway, metrics, operator API)
// during shutdown.
const ShutdownGracePeriod = 5 * time.Second
