package config

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "sqlite" }},
		{name: "postgres without password", mutate: func(c *Config) { c.StoreDriver = StorePostgres }},
		{name: "pool bounds", mutate: func(c *Config) {
			c.StoreDriver = StorePostgres
			c.DBPassword = "secret"
			c.DBMinConns = 30
			c.DBMaxConns = 10
		}},
		{name: "bot without inflight", mutate: func(c *Config) {
			c.TelegramBotToken = "token"
			c.BotMaxInflight = 0
		}},
		{name: "zero min transfer", mutate: func(c *Config) { c.LedgerMinTransfer = 0 }},
		{name: "max below min transfer", mutate: func(c *Config) { c.LedgerMaxTransfer = 10 }},
		{name: "max transfer overflows", mutate: func(c *Config) { c.LedgerMaxTransfer = math.MaxInt64 }},
		{name: "commission above 100", mutate: func(c *Config) { c.LedgerCommissionPercent = 101 }},
		{name: "zero daily limit", mutate: func(c *Config) { c.AwardDailyLimit = 0 }},
		{name: "zero max price", mutate: func(c *Config) { c.ShopMaxPrice = 0 }},
		{name: "bad timezone", mutate: func(c *Config) { c.AppTimezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("STORE_DRIVER", " Memory ")
	t.Setenv("LEDGER_MIN_TRANSFER", "50")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("APP_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, int64(50), cfg.LedgerMinTransfer)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, int64(5), cfg.LedgerCommissionPercent)
	assert.Equal(t, int64(1000000), cfg.LedgerMaxTransfer)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "localhost", DBPort: 5432, DBName: "astro", DBSSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@localhost:5432/astro?sslmode=disable", cfg.DatabaseDSN())
}
