// Package config loads the service settings and the operator's
// service-name map.
//
// Settings come from three layers, lowest precedence first: built-in
// defaults, an optional YAML settings file, and DOCKPORTS_* environment
// variables. A .env file in the working directory is folded into the
// environment before the variables are read.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/dockports/internal/model"
)

const (
	// DefaultListenPort is the port the HTTP API binds by default,
	// unchanged from earlier releases so existing deployments keep
	// working.
	DefaultListenPort = 7577

	// DefaultDataDir is where the persisted state files live unless
	// configured otherwise.
	DefaultDataDir = "config"

	// defaultConfigFile is probed when no --config flag is given.
	defaultConfigFile = "dockports.yaml"
)

// Config holds the runtime settings of the dockports service.
type Config struct {
	// ListenHost is the address the HTTP API binds.
	ListenHost string `yaml:"listen_host"`

	// ListenPort is the TCP port the HTTP API binds.
	ListenPort int `yaml:"listen_port"`

	// DataDir is the directory holding the persisted state files.
	DataDir string `yaml:"data_dir"`

	// HiddenPortsFile is the hidden-port state file. Defaults to
	// hidden_ports.json under DataDir.
	HiddenPortsFile string `yaml:"hidden_ports_file"`

	// ServiceNamesFile is the operator's service-name map. Defaults to
	// service_names.jsonc under DataDir.
	ServiceNamesFile string `yaml:"service_names_file"`

	// SourceTimeout bounds the Docker query and the host scan on each
	// aggregation pass.
	SourceTimeout time.Duration `yaml:"source_timeout"`
}

// Load builds the effective configuration. path names an explicit YAML
// settings file; when empty, dockports.yaml in the working directory is
// used if present. Environment variables override file values.
func Load(path string) (*Config, error) {
	// Fold a .env file into the environment when one exists. A missing
	// file is the normal case, not an error.
	_ = godotenv.Load()

	cfg := &Config{
		ListenHost:    "0.0.0.0",
		ListenPort:    DefaultListenPort,
		DataDir:       DefaultDataDir,
		SourceTimeout: 10 * time.Second,
	}

	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, model.WrapError(model.KindConfig, fmt.Sprintf("failed to read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, model.WrapError(model.KindConfig, fmt.Sprintf("failed to parse config file %s", path), err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.HiddenPortsFile == "" {
		cfg.HiddenPortsFile = filepath.Join(cfg.DataDir, "hidden_ports.json")
	}
	if cfg.ServiceNamesFile == "" {
		cfg.ServiceNamesFile = filepath.Join(cfg.DataDir, "service_names.jsonc")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from DOCKPORTS_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("DOCKPORTS_LISTEN_HOST"); v != "" {
		cfg.ListenHost = v
	}
	if v := os.Getenv("DOCKPORTS_LISTEN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return model.WrapError(model.KindConfig, "DOCKPORTS_LISTEN_PORT is not a number", err)
		}
		cfg.ListenPort = port
	}
	if v := os.Getenv("DOCKPORTS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DOCKPORTS_HIDDEN_PORTS_FILE"); v != "" {
		cfg.HiddenPortsFile = v
	}
	if v := os.Getenv("DOCKPORTS_SERVICE_NAMES_FILE"); v != "" {
		cfg.ServiceNamesFile = v
	}
	if v := os.Getenv("DOCKPORTS_SOURCE_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return model.WrapError(model.KindConfig, "DOCKPORTS_SOURCE_TIMEOUT is not a duration", err)
		}
		cfg.SourceTimeout = timeout
	}
	return nil
}

// validate checks the effective settings.
func (c *Config) validate() error {
	if !model.ValidPort(c.ListenPort) {
		return model.NewError(model.KindConfig, fmt.Sprintf("listen port %d out of range (%d-%d)", c.ListenPort, model.MinPort, model.MaxPort))
	}
	if c.SourceTimeout <= 0 {
		return model.NewError(model.KindConfig, "source timeout must be positive")
	}
	return nil
}

// Addr returns the host:port the HTTP server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}
