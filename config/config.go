/*
Package config loads and validates the server configuration from a YAML
file. Defaults favor a local single-binary run: SQLite storage and a
loopback listen address.
*/
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Driver selects the storage backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config is the whole server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ShutdownTimeout time.Duration `yaml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout"`
}

// DatabaseConfig covers storage. For sqlite only Path is used, for
// postgres the connection fields.
type DatabaseConfig struct {
	Driver Driver `yaml:"driver"`

	// sqlite
	Path string `yaml:"path"`

	// postgres
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		c.Database.Path = "./attendance.db"
	}
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ShutdownTimeoutRaw != "" {
		d, err := time.ParseDuration(c.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("config: server.shutdown_timeout: %w", err)
		}
		c.Server.ShutdownTimeout = d
	}

	c.applyDefaults()

	switch c.Database.Driver {
	case DriverSQLite:
		// Path is defaulted above.
	case DriverPostgres:
		db := &c.Database
		if db.Host == "" {
			return fmt.Errorf("config: database.host must be set for postgres")
		}
		if db.Port == 0 {
			return fmt.Errorf("config: database.port must be set for postgres")
		}
		if db.User == "" {
			return fmt.Errorf("config: database.user must be set for postgres")
		}
		if db.Name == "" {
			return fmt.Errorf("config: database.name must be set for postgres")
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}

	return nil
}

// DSN returns the pgx connection string. Only meaningful for postgres.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}
