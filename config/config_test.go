package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/swingtrader/exits"
	"github.com/rustyeddy/swingtrader/market"
	"github.com/rustyeddy/swingtrader/risk"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NotNil(t, cfg)
	assert.Equal(t, 0.17, cfg.Risk.InitialStopPct)
	assert.Equal(t, "closing", cfg.Risk.StopBasis)
	assert.Len(t, cfg.Risk.Targets, 3)
	assert.Equal(t, 15, cfg.Queue.CollectMinutes)
	assert.Equal(t, "paper", cfg.Broker.Mode)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{
			name:   "missing db path",
			mutate: func(c *Config) { c.Store.DBPath = "" },
			errMsg: "store.db_path is required",
		},
		{
			name:   "bad timezone",
			mutate: func(c *Config) { c.Store.Timezone = "Mars/Olympus" },
			errMsg: "store.timezone",
		},
		{
			name:   "initial stop out of range",
			mutate: func(c *Config) { c.Risk.InitialStopPct = 1.5 },
			errMsg: "risk.initial_stop_pct must be between 0 and 1",
		},
		{
			name:   "unknown stop basis",
			mutate: func(c *Config) { c.Risk.StopBasis = "vwap" },
			errMsg: "risk.stop_basis must be 'closing' or 'intraday'",
		},
		{
			name: "tiers loosen the stop",
			mutate: func(c *Config) {
				c.Risk.Tiers = []risk.Tier{{ProfitThreshold: 0.05, StopPct: 0.20}}
			},
			errMsg: "risk.tiers",
		},
		{
			name: "duplicate target label",
			mutate: func(c *Config) {
				c.Risk.Targets = []exits.Target{
					{Label: "T1", Profit: 0.1, Fraction: 0.5},
					{Label: "T1", Profit: 0.2, Fraction: 0.5},
				}
			},
			errMsg: "duplicated",
		},
		{
			name:   "zero top n",
			mutate: func(c *Config) { c.Queue.TopN = 0 },
			errMsg: "queue.top_n must be positive",
		},
		{
			name:   "zero daily cap",
			mutate: func(c *Config) { c.Queue.MaxTradesPerDay = 0 },
			errMsg: "queue.max_trades_per_day must be positive",
		},
		{
			name:   "csv without dir",
			mutate: func(c *Config) { c.Data.Source = "csv" },
			errMsg: "data.csv_dir required for csv source",
		},
		{
			name:   "bad timeframe",
			mutate: func(c *Config) { c.Data.Timeframe = "1Week" },
			errMsg: "data.timeframe",
		},
		{
			name:   "bad timeout",
			mutate: func(c *Config) { c.Data.Timeout = "soon" },
			errMsg: "data.timeout",
		},
		{
			name:   "bad tick spec",
			mutate: func(c *Config) { c.Schedule.Tick = "every five minutes" },
			errMsg: "schedule.tick",
		},
		{
			name:   "paper without cash",
			mutate: func(c *Config) { c.Broker.PaperCash = 0 },
			errMsg: "broker.paper_cash must be positive for paper mode",
		},
		{
			name:   "unknown broker",
			mutate: func(c *Config) { c.Broker.Mode = "ib" },
			errMsg: "broker.mode must be 'paper' or 'alpaca'",
		},
		{
			name: "alpaca live",
			mutate: func(c *Config) {
				c.Broker.Mode = "alpaca"
				c.Broker.Env = "live"
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"config.yaml", "config.json"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), name)
			cfg := Default()
			cfg.Watchlist = []string{"TSLA"}
			cfg.Queue.TopN = 2
			require.NoError(t, cfg.SaveToFile(path))

			got, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, []string{"TSLA"}, got.Watchlist)
			assert.Equal(t, 2, got.Queue.TopN)
			assert.Equal(t, cfg.Risk.Tiers, got.Risk.Tiers)
		})
	}
}

func TestLoadFromFilePartialKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  top_n: 5\n  collect_minutes: 10\n  max_trades_per_day: 4\n  max_open_positions: 6\n"), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Queue.TopN)
	assert.Equal(t, 0.17, cfg.Risk.InitialStopPct)
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  db_path: \"\"\n"), 0o644))
	_, err = LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestEngineConfig(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Data.Timeout = "3s"
	ec := cfg.Engine()

	assert.Equal(t, 15*time.Minute, ec.Queue.CollectWindow)
	assert.Equal(t, 3, ec.Queue.TopN)
	assert.Equal(t, 3, ec.Queue.Limits.MaxTradesPerDay)
	assert.Equal(t, 10, ec.Queue.Limits.MaxOpenPositions)
	assert.Equal(t, 3*time.Second, ec.Queue.CallTimeout)
	assert.Equal(t, 3*time.Second, ec.Exits.CallTimeout)
	assert.Equal(t, market.Day, ec.Exits.Timeframe)
	assert.Equal(t, 20, ec.Exits.Rules.MaxHoldDays)
	assert.Equal(t, risk.BasisClosing, ec.Exits.Trailing.Basis)
	assert.InDelta(t, 83.0, ec.Queue.Trailing.InitialStop(100), 1e-9)
	assert.Equal(t, cfg.Watchlist, ec.Watchlist)
}

func TestDurations(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Data.Timeout = ""
	cfg.Data.PriceTTL = "1m"
	assert.Equal(t, 10*time.Second, cfg.CallTimeout())
	assert.Equal(t, time.Minute, cfg.PriceTTL())
	assert.Equal(t, "America/New_York", cfg.StoreLocation().String())
}

func TestLoadSecrets(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("ALPACA_API_KEY=from-file\nALPACA_SECRET_KEY=shh\n"), 0o600))

	t.Setenv("ALPACA_API_KEY", "from-env")
	t.Setenv("ALPACA_SECRET_KEY", "")
	t.Setenv("REDIS_PASSWORD", "pw")

	s, err := LoadSecrets(dotenv, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.AlpacaKey)
	assert.Equal(t, "pw", s.RedisPassword)
}

func TestRequireAlpaca(t *testing.T) {
	t.Parallel()

	assert.Error(t, Secrets{AlpacaKey: "k"}.RequireAlpaca())
	assert.NoError(t, Secrets{AlpacaKey: "k", AlpacaSecret: "s"}.RequireAlpaca())
}
