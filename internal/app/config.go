// Package app assembles the bot: configuration, bootstrap, and the wiring
// of store, rental service, and Telegram handlers.
package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/voltrent/energybot/core/config"
	coredatabase "github.com/voltrent/energybot/core/database"
	"github.com/voltrent/energybot/internal/platform"
)

const (
	// BackendMemory keeps accounts and ledgers in process memory.
	BackendMemory = "memory"
	// BackendPostgres persists them in PostgreSQL.
	BackendPostgres = "postgres"
)

const defaultUnitPrice = "0.50"

// EnergyConfig holds pricing settings.
type EnergyConfig struct {
	// UnitPrice is the price per kWh in dollars, as a decimal string.
	UnitPrice string `yaml:"unit_price" envconfig:"ENERGY_UNIT_PRICE"`
}

// LedgerConfig selects the ledger backend.
type LedgerConfig struct {
	Backend string `yaml:"backend" envconfig:"LEDGER_BACKEND"`
}

// Config is the full bot configuration: the shared core sections inline at
// the top level plus the bot-specific ones.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Energy   EnergyConfig        `yaml:"energy"`
	Ledger   LedgerConfig        `yaml:"ledger"`
	Platform platform.Config     `yaml:"platform"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Core }

// UnitPrice parses the configured price per kWh.
func (c *Config) UnitPrice() (decimal.Decimal, error) {
	price, err := decimal.NewFromString(c.Energy.UnitPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: invalid energy.unit_price %q: %w", c.Energy.UnitPrice, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("config: energy.unit_price must be positive, got %s", price)
	}
	return price, nil
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates bot-specific sections and applies defaults, then
// delegates the core sections to the core validator.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Energy.UnitPrice) == "" {
		cfg.Energy.UnitPrice = defaultUnitPrice
	}
	if _, err := cfg.UnitPrice(); err != nil {
		return err
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Ledger.Backend))
	if backend == "" {
		backend = BackendMemory
	}
	switch backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("invalid ledger.backend %q; allowed: memory, postgres", cfg.Ledger.Backend)
	}
	cfg.Ledger.Backend = backend

	if cfg.Platform.Enabled {
		if strings.TrimSpace(cfg.Platform.BaseURL) == "" {
			return fmt.Errorf("platform.base_url is required when platform.enabled is true")
		}
	}
	return nil
}
