package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	coreconfig "github.com/voltrent/energybot/core/config"
)

func validConfig() *Config {
	return &Config{
		Core: coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{Token: "token"},
		},
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	require.Equal(t, BackendMemory, cfg.Ledger.Backend)
	require.Equal(t, defaultUnitPrice, cfg.Energy.UnitPrice)

	price, err := cfg.UnitPrice()
	require.NoError(t, err)
	require.Equal(t, "0.5", price.String())
}

func TestNormalizeRejectsUnknownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Ledger.Backend = "redis"
	require.Error(t, Normalize(cfg))
}

func TestNormalizeRejectsBadUnitPrice(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-1"} {
		cfg := validConfig()
		cfg.Energy.UnitPrice = raw
		require.Error(t, Normalize(cfg), "unit price %q", raw)
	}
}

func TestNormalizeRequiresPlatformURLWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Platform.Enabled = true
	require.Error(t, Normalize(cfg))

	cfg.Platform.BaseURL = "https://platform.example"
	require.NoError(t, Normalize(cfg))
}

func TestBackendCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	cfg.Ledger.Backend = " Postgres "
	require.NoError(t, Normalize(cfg))
	require.Equal(t, BackendPostgres, cfg.Ledger.Backend)
}
