package client

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const projectName = "weatherdash"

// DefaultServer is used when neither the config file nor the environment names one
const DefaultServer = "http://localhost:8080"

// CLIConfig is the on-disk client configuration
type CLIConfig struct {
	Server  string        `yaml:"server"`
	Token   string        `yaml:"token,omitempty"`
	Output  string        `yaml:"output,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	NoColor bool          `yaml:"no_color,omitempty"`

	path string
}

// DefaultConfig returns the configuration used before any file exists
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		Server:  DefaultServer,
		Output:  OutputTable,
		Timeout: 30 * time.Second,
	}
}

// ConfigPath returns the default cli.yml location
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "cli.yml")
}

// LoadConfig reads path (or the default location when empty) and applies
// WEATHERDASH_SERVER and WEATHERDASH_TOKEN. A missing file is not an error.
func LoadConfig(path string) (*CLIConfig, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, configError("failed to parse %s: %v", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, configError("failed to read %s: %v", path, err)
	}

	if v := os.Getenv("WEATHERDASH_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("WEATHERDASH_TOKEN"); v != "" {
		cfg.Token = v
	}

	cfg.Server = strings.TrimRight(cfg.Server, "/")
	if cfg.Output == "" {
		cfg.Output = OutputTable
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg, nil
}

// Path returns the file this configuration is saved to
func (c *CLIConfig) Path() string {
	if c.path == "" {
		return ConfigPath()
	}
	return c.path
}

// Save writes the configuration with user-only permissions
func (c *CLIConfig) Save() error {
	path := c.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return configError("failed to create config directory: %v", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return configError("failed to marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return configError("failed to write config: %v", err)
	}
	if err := setFilePermissions(path); err != nil {
		return configError("failed to set permissions on %s: %v", path, err)
	}
	return nil
}
