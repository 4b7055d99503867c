package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/swingtrader/detector"
	"github.com/rustyeddy/swingtrader/engine"
	"github.com/rustyeddy/swingtrader/exits"
	"github.com/rustyeddy/swingtrader/market"
	"github.com/rustyeddy/swingtrader/risk"
	"github.com/rustyeddy/swingtrader/scheduler"
	"github.com/rustyeddy/swingtrader/signals"
)

// Config is the complete run configuration. It is read once at startup
// and not changed while the engine runs.
type Config struct {
	Log       LogConfig       `json:"log" yaml:"log"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Sizing    SizingConfig    `json:"sizing" yaml:"sizing"`
	Queue     QueueConfig     `json:"queue" yaml:"queue"`
	Data      DataConfig      `json:"data" yaml:"data"`
	Detector  detector.Config `json:"detector" yaml:"detector"`
	Schedule  ScheduleConfig  `json:"schedule" yaml:"schedule"`
	Broker    BrokerConfig    `json:"broker" yaml:"broker"`
	Watchlist []string        `json:"watchlist" yaml:"watchlist"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json or console
}

type StoreConfig struct {
	DBPath   string `json:"db_path" yaml:"db_path"`
	Timezone string `json:"timezone" yaml:"timezone"` // calendar for the daily trade cap
}

type RiskConfig struct {
	InitialStopPct float64        `json:"initial_stop_pct" yaml:"initial_stop_pct"`
	StopBasis      string         `json:"stop_basis" yaml:"stop_basis"` // closing or intraday
	Tiers          []risk.Tier    `json:"tiers" yaml:"tiers"`
	Targets        []exits.Target `json:"targets" yaml:"targets"`
	MaxHoldDays    int            `json:"max_hold_days" yaml:"max_hold_days"`
}

type SizingConfig struct {
	RiskPct        float64 `json:"risk_pct" yaml:"risk_pct"`
	MaxPositionPct float64 `json:"max_position_pct" yaml:"max_position_pct"`
}

type QueueConfig struct {
	CollectMinutes   int `json:"collect_minutes" yaml:"collect_minutes"`
	TopN             int `json:"top_n" yaml:"top_n"`
	MaxTradesPerDay  int `json:"max_trades_per_day" yaml:"max_trades_per_day"`
	MaxOpenPositions int `json:"max_open_positions" yaml:"max_open_positions"`
}

type DataConfig struct {
	Source    string `json:"source" yaml:"source"` // alpaca or csv
	Feed      string `json:"feed,omitempty" yaml:"feed,omitempty"`
	CSVDir    string `json:"csv_dir,omitempty" yaml:"csv_dir,omitempty"`
	Timeframe string `json:"timeframe" yaml:"timeframe"`
	Lookback  int    `json:"lookback" yaml:"lookback"`
	Timeout   string `json:"timeout" yaml:"timeout"` // per external call, e.g. "10s"

	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisDB   int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	PriceTTL  string `json:"price_ttl,omitempty" yaml:"price_ttl,omitempty"`
}

type ScheduleConfig struct {
	Timezone string `json:"timezone" yaml:"timezone"`
	Tick     string `json:"tick" yaml:"tick"` // cron spec with seconds
	Scan     string `json:"scan" yaml:"scan"`
}

type BrokerConfig struct {
	Mode        string  `json:"mode" yaml:"mode"` // paper or alpaca
	Env         string  `json:"env,omitempty" yaml:"env,omitempty"`
	PaperCash   float64 `json:"paper_cash,omitempty" yaml:"paper_cash,omitempty"`
	SlippageBps float64 `json:"slippage_bps,omitempty" yaml:"slippage_bps,omitempty"`
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path is required")
	}
	if _, err := loadLocation(c.Store.Timezone); err != nil {
		return fmt.Errorf("store.timezone: %w", err)
	}

	if c.Risk.InitialStopPct <= 0 || c.Risk.InitialStopPct >= 1 {
		return fmt.Errorf("risk.initial_stop_pct must be between 0 and 1")
	}
	if b := risk.Basis(c.Risk.StopBasis); b != risk.BasisClosing && b != risk.BasisIntraday {
		return fmt.Errorf("risk.stop_basis must be 'closing' or 'intraday'")
	}
	if err := c.TrailingPolicy().Validate(); err != nil {
		return fmt.Errorf("risk.tiers: %w", err)
	}
	if err := exits.ValidateTargets(c.Risk.Targets); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if c.Risk.MaxHoldDays < 0 {
		return fmt.Errorf("risk.max_hold_days must not be negative")
	}

	if c.Sizing.RiskPct <= 0 || c.Sizing.RiskPct > 1 {
		return fmt.Errorf("sizing.risk_pct must be between 0 and 1")
	}
	if c.Sizing.MaxPositionPct < 0 || c.Sizing.MaxPositionPct > 1 {
		return fmt.Errorf("sizing.max_position_pct must be between 0 and 1")
	}

	if c.Queue.CollectMinutes <= 0 {
		return fmt.Errorf("queue.collect_minutes must be positive")
	}
	if c.Queue.TopN <= 0 {
		return fmt.Errorf("queue.top_n must be positive")
	}
	if c.Queue.MaxTradesPerDay <= 0 {
		return fmt.Errorf("queue.max_trades_per_day must be positive")
	}
	if c.Queue.MaxOpenPositions <= 0 {
		return fmt.Errorf("queue.max_open_positions must be positive")
	}

	switch c.Data.Source {
	case "alpaca":
	case "csv":
		if c.Data.CSVDir == "" {
			return fmt.Errorf("data.csv_dir required for csv source")
		}
	default:
		return fmt.Errorf("data.source must be 'alpaca' or 'csv'")
	}
	if _, _, err := market.Timeframe(c.Data.Timeframe).Parse(); err != nil {
		return fmt.Errorf("data.timeframe: %w", err)
	}
	if c.Data.Lookback <= 0 {
		return fmt.Errorf("data.lookback must be positive")
	}
	if _, err := parseDuration(c.Data.Timeout, 0); err != nil {
		return fmt.Errorf("data.timeout: %w", err)
	}
	if _, err := parseDuration(c.Data.PriceTTL, 0); err != nil {
		return fmt.Errorf("data.price_ttl: %w", err)
	}

	if err := c.Detector.Validate(); err != nil {
		return err
	}

	if _, err := loadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if c.Schedule.Tick == "" {
		return fmt.Errorf("schedule.tick is required")
	}
	if err := scheduler.ValidateSpec(c.Schedule.Tick); err != nil {
		return fmt.Errorf("schedule.tick: %w", err)
	}
	if c.Schedule.Scan != "" {
		if err := scheduler.ValidateSpec(c.Schedule.Scan); err != nil {
			return fmt.Errorf("schedule.scan: %w", err)
		}
	}

	switch c.Broker.Mode {
	case "paper":
		if c.Broker.PaperCash <= 0 {
			return fmt.Errorf("broker.paper_cash must be positive for paper mode")
		}
	case "alpaca":
		if c.Broker.Env != "" && c.Broker.Env != "paper" && c.Broker.Env != "live" {
			return fmt.Errorf("broker.env must be 'paper' or 'live'")
		}
	default:
		return fmt.Errorf("broker.mode must be 'paper' or 'alpaca'")
	}

	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{
			DBPath:   "./swingtrader.db",
			Timezone: "America/New_York",
		},
		Risk: RiskConfig{
			InitialStopPct: 0.17,
			StopBasis:      string(risk.BasisClosing),
			Tiers: []risk.Tier{
				{ProfitThreshold: 0.05, StopPct: 0.09},
				{ProfitThreshold: 0.10, StopPct: 0.03},
				{ProfitThreshold: 0.15, StopPct: -0.05},
			},
			Targets: []exits.Target{
				{Label: "T1", Profit: 0.10, Fraction: 1.0 / 3},
				{Label: "T2", Profit: 0.15, Fraction: 1.0 / 3},
				{Label: "T3", Profit: 0.20, Fraction: 1.0 / 3},
			},
			MaxHoldDays: 20,
		},
		Sizing: SizingConfig{RiskPct: 0.01, MaxPositionPct: 0.25},
		Queue: QueueConfig{
			CollectMinutes:   15,
			TopN:             3,
			MaxTradesPerDay:  3,
			MaxOpenPositions: 10,
		},
		Data: DataConfig{
			Source:    "alpaca",
			Feed:      "iex",
			Timeframe: string(market.Day),
			Lookback:  120,
			Timeout:   "10s",
			PriceTTL:  "15s",
		},
		Detector: detector.DefaultConfig(),
		Schedule: ScheduleConfig{
			Timezone: "America/New_York",
			Tick:     "0 */5 9-15 * * MON-FRI",
			Scan:     "0 35,50 9 * * MON-FRI",
		},
		Broker: BrokerConfig{
			Mode:      "paper",
			Env:       "paper",
			PaperCash: 100000,
		},
		Watchlist: []string{"AAPL", "MSFT", "NVDA", "AMZN", "META"},
	}
}

// TrailingPolicy builds the stop ladder.
func (c *Config) TrailingPolicy() risk.TrailingPolicy {
	return risk.TrailingPolicy{
		InitialStopPct: c.Risk.InitialStopPct,
		Tiers:          c.Risk.Tiers,
		Basis:          risk.Basis(c.Risk.StopBasis),
	}
}

// CallTimeout is the per-call budget for external requests.
func (c *Config) CallTimeout() time.Duration {
	d, _ := parseDuration(c.Data.Timeout, 10*time.Second)
	return d
}

// PriceTTL is how long a cached latest price stays fresh.
func (c *Config) PriceTTL() time.Duration {
	d, _ := parseDuration(c.Data.PriceTTL, 15*time.Second)
	return d
}

func (c *Config) StoreLocation() *time.Location {
	loc, _ := loadLocation(c.Store.Timezone)
	return loc
}

func (c *Config) ScheduleLocation() *time.Location {
	loc, _ := loadLocation(c.Schedule.Timezone)
	return loc
}

// Engine converts the file layout into the engine's configuration.
func (c *Config) Engine() engine.Config {
	policy := c.TrailingPolicy()
	tf := market.Timeframe(c.Data.Timeframe)
	timeout := c.CallTimeout()

	return engine.Config{
		Exits: exits.Config{
			Trailing:    policy,
			Rules:       exits.Rules{Targets: c.Risk.Targets, MaxHoldDays: c.Risk.MaxHoldDays},
			Timeframe:   tf,
			CallTimeout: timeout,
		},
		Queue: signals.Config{
			CollectWindow: time.Duration(c.Queue.CollectMinutes) * time.Minute,
			TopN:          c.Queue.TopN,
			Limits: risk.Limits{
				MaxTradesPerDay:  c.Queue.MaxTradesPerDay,
				MaxOpenPositions: c.Queue.MaxOpenPositions,
			},
			Timeframe:      tf,
			Lookback:       c.Data.Lookback,
			RiskPct:        c.Sizing.RiskPct,
			MaxPositionPct: c.Sizing.MaxPositionPct,
			Trailing:       policy,
			CallTimeout:    timeout,
		},
		Watchlist:   c.Watchlist,
		Timeframe:   tf,
		Lookback:    c.Data.Lookback,
		ScanTimeout: timeout,
	}
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, err
	}
	if d < 0 {
		return def, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
