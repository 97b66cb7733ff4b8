package flightscout

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flightscout/flightscout/agent"
	"github.com/flightscout/flightscout/compaction"
)

// Storage driver names accepted by StorageConfig.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default configuration values.
const (
	DefaultStorageDriver          = DriverSQLite
	DefaultSQLitePath             = "flight_sessions.db"
	DefaultMaxClarificationRounds = 3
	DefaultRetentionDays          = 30
	DefaultRetentionInterval      = time.Hour
)

// StorageConfig selects and configures the session store backend.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	// DSN is the SQLite file path or the Postgres connection string.
	// For postgres it falls back to DATABASE_URL when empty.
	DSN string `yaml:"dsn"`
}

// RetentionConfig configures the background cleanup of old sessions.
type RetentionConfig struct {
	// Days is the age in days beyond which sessions are deleted.
	// Zero disables the sweeper.
	Days int `yaml:"days"`

	// Interval between sweeps.
	Interval time.Duration `yaml:"interval"`
}

// Config is the top-level configuration for the orchestrator and its
// collaborators.
type Config struct {
	Storage    StorageConfig      `yaml:"storage"`
	OpenAI     agent.OpenAIConfig `yaml:"openai"`
	Compaction compaction.Config  `yaml:"compaction"`
	Retention  RetentionConfig    `yaml:"retention"`

	// MaxClarificationRounds caps the clarify loop before the brief is
	// written regardless.
	MaxClarificationRounds int `yaml:"max_clarification_rounds"`
}

// DefaultConfig returns a config with all defaults applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.DSN == "" {
		c.Storage.DSN = DefaultSQLitePath
	}
	if c.Storage.Driver == DriverPostgres && c.Storage.DSN == "" {
		c.Storage.DSN = os.Getenv("DATABASE_URL")
	}
	if c.MaxClarificationRounds <= 0 {
		c.MaxClarificationRounds = DefaultMaxClarificationRounds
	}
	if c.Retention.Days == 0 {
		c.Retention.Days = DefaultRetentionDays
	}
	if c.Retention.Interval <= 0 {
		c.Retention.Interval = DefaultRetentionInterval
	}
	c.OpenAI.ApplyDefaults()
	c.Compaction.ApplyDefaults()
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("%w: storage dsn is required", ErrInvalidConfig)
	}
	if c.Retention.Days < 0 {
		return fmt.Errorf("%w: retention days must not be negative", ErrInvalidConfig)
	}
	if err := c.Compaction.Validate(); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads a YAML config file and applies defaults. A missing path
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
