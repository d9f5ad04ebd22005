package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sjkallio/kirjuri/types"
)

// Config represents the main configuration
type Config struct {
	Version     string                     `yaml:"version"`
	StorageDir  string                     `yaml:"storage_dir"`
	JournalDir  string                     `yaml:"journal_dir,omitempty"`
	Connections []types.ProviderConnection `yaml:"connections"`
	Sync        SyncConfig                 `yaml:"sync,omitempty"`
}

// SyncConfig tunes pipeline behavior
type SyncConfig struct {
	Interval      time.Duration `yaml:"interval"`       // daemon schedule
	CallTimeout   time.Duration `yaml:"call_timeout"`   // per outbound provider call
	BillingPeriod time.Duration `yaml:"billing_period"` // lookback window for billing queries
	CostTolerance float64       `yaml:"cost_tolerance"` // absolute delta below which cost is unchanged
}

// Defaults used when sync settings are omitted.
const (
	DefaultInterval      = time.Hour
	DefaultCallTimeout   = 2 * time.Minute
	DefaultBillingPeriod = 24 * time.Hour
	DefaultCostTolerance = 0.001
)

// Load loads configuration from file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.Interval == 0 {
		c.Sync.Interval = DefaultInterval
	}
	if c.Sync.CallTimeout == 0 {
		c.Sync.CallTimeout = DefaultCallTimeout
	}
	if c.Sync.BillingPeriod == 0 {
		c.Sync.BillingPeriod = DefaultBillingPeriod
	}
	if c.Sync.CostTolerance == 0 {
		c.Sync.CostTolerance = DefaultCostTolerance
	}
	if c.JournalDir == "" && c.StorageDir != "" {
		c.JournalDir = c.StorageDir
	}
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir is required")
	}
	if len(c.Connections) == 0 {
		return fmt.Errorf("at least one connection is required")
	}

	seen := make(map[string]bool)
	for i, conn := range c.Connections {
		if conn.ID == "" {
			return fmt.Errorf("connection %d: id is required", i)
		}
		if conn.Provider == "" {
			return fmt.Errorf("connection %s: provider is required", conn.ID)
		}
		if seen[conn.ID] {
			return fmt.Errorf("connection %s: duplicate id", conn.ID)
		}
		seen[conn.ID] = true
	}

	return nil
}

// Connection returns the connection with the given id.
func (c *Config) Connection(id string) (*types.ProviderConnection, error) {
	for i := range c.Connections {
		if c.Connections[i].ID == id {
			return &c.Connections[i], nil
		}
	}
	return nil, fmt.Errorf("connection %s not found", id)
}
