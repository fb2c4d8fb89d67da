// Package config loads the settings of the SmartKey binaries.
//
// Settings are read from a YAML file and then overridden by command-line
// flags. Zero values in the file fall back to Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Replay ledger backends.
const (
	ReplayMemory = "memory"
	ReplaySQL    = "sql"
)

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Registry  RegistryConfig  `yaml:"registry"`
	Store     StoreConfig     `yaml:"store"`
	Journal   JournalConfig   `yaml:"journal"`
	Replay    ReplayConfig    `yaml:"replay"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// ListenAddress is the address to listen on (e.g. ":8545").
	ListenAddress   string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RegistryConfig configures the credential registry.
type RegistryConfig struct {
	Address        string        `yaml:"address"`
	Manufacturer   string        `yaml:"manufacturer"`
	Deployer       string        `yaml:"deployer"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`

	// DSN is the file path for "file" and the data source name for the SQL drivers.
	DSN string `yaml:"dsn"`
}

// JournalConfig configures the event journal.
type JournalConfig struct {
	// Path of the CBOR journal. Empty disables the file journal.
	Path string `yaml:"path"`
}

// ReplayConfig configures replay protection for delegated engagement.
type ReplayConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Backend    string        `yaml:"backend"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// DiscoveryConfig configures mDNS advertisement.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// LogConfig configures operational logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddress:   ":8545",
			ShutdownTimeout: 5 * time.Second,
		},
		Registry: RegistryConfig{
			DefaultTimeout: time.Hour,
		},
		Store: StoreConfig{
			Driver: StoreMemory,
		},
		Replay: ReplayConfig{
			Backend:    ReplayMemory,
			TTL:        24 * time.Hour,
			MaxEntries: 8192,
		},
		Discovery: DiscoveryConfig{
			Instance: "smartkey",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration can be used to start a registry.
func (c *Config) Validate() error {
	required := []struct{ name, value string }{
		{"registry.address", c.Registry.Address},
		{"registry.manufacturer", c.Registry.Manufacturer},
	}
	for _, f := range required {
		addr, err := identity.ParseAddress(f.value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, f.name, err)
		}
		if addr.IsZero() {
			return fmt.Errorf("%w: %s must not be zero", ErrInvalidConfig, f.name)
		}
	}
	if c.Registry.Deployer != "" {
		if _, err := identity.ParseAddress(c.Registry.Deployer); err != nil {
			return fmt.Errorf("%w: registry.deployer: %v", ErrInvalidConfig, err)
		}
	}
	if c.Registry.DefaultTimeout < time.Second {
		return fmt.Errorf("%w: registry.default_timeout must be at least 1s", ErrInvalidConfig)
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreFile, StoreSQLite, StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for driver %q", ErrInvalidConfig, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}

	if c.Replay.Enabled {
		switch c.Replay.Backend {
		case ReplayMemory:
		case ReplaySQL:
			if c.Store.Driver != StoreSQLite && c.Store.Driver != StorePostgres {
				return fmt.Errorf("%w: replay backend %q needs a SQL store", ErrInvalidConfig, ReplaySQL)
			}
		default:
			return fmt.Errorf("%w: unknown replay backend %q", ErrInvalidConfig, c.Replay.Backend)
		}
		if c.Replay.TTL <= 0 {
			return fmt.Errorf("%w: replay.ttl must be positive", ErrInvalidConfig)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}

	if c.Server.ListenAddress == "" {
		return fmt.Errorf("%w: server.listen is required", ErrInvalidConfig)
	}
	return nil
}

// RegistryAddress returns the parsed registry address. Call Validate first.
func (c *Config) RegistryAddress() identity.Address {
	addr, _ := identity.ParseAddress(c.Registry.Address)
	return addr
}

// ManufacturerAddress returns the parsed manufacturer address. Call Validate first.
func (c *Config) ManufacturerAddress() identity.Address {
	addr, _ := identity.ParseAddress(c.Registry.Manufacturer)
	return addr
}

// DeployerAddress returns the identity that holds the store authority before
// it is handed to the registry. It defaults to the manufacturer.
func (c *Config) DeployerAddress() identity.Address {
	if c.Registry.Deployer == "" {
		return c.ManufacturerAddress()
	}
	addr, _ := identity.ParseAddress(c.Registry.Deployer)
	return addr
}
