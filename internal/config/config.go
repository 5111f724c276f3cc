// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBX_* environment variables.
type Config struct {
	Venues   VenuesConfig   `toml:"venues"`
	Broker   BrokerConfig   `toml:"broker"`
	Feed     FeedConfig     `toml:"feed"`
	Trading  TradingConfig  `toml:"trading"`
	Risk     RiskConfig     `toml:"risk"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	// Instruments is the static instrument table used when the Postgres
	// instrument master is disabled.
	Instruments []InstrumentConfig `toml:"instruments"`
	Mode        string             `toml:"mode"`
	LogLevel    string             `toml:"log_level"`
}

// InstrumentConfig is one static (symbol, venue) instrument mapping.
type InstrumentConfig struct {
	Symbol        string `toml:"symbol"`
	Venue         string `toml:"venue"`
	TradingSymbol string `toml:"trading_symbol"`
	Token         string `toml:"token"`
}

// VenuesConfig names the two venues the engine arbitrages between. Primary
// is the preferred buy venue on an exact spread tie.
type VenuesConfig struct {
	Primary   string `toml:"primary"`
	Secondary string `toml:"secondary"`
}

// BrokerConfig holds broker API credentials and endpoints.
type BrokerConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	ClientID   string `toml:"client_id"`
	Pin        string `toml:"pin"`
	TOTPSecret string `toml:"totp_secret"`
}

// FeedConfig holds market-data feed parameters.
type FeedConfig struct {
	WsURL      string `toml:"ws_url"`
	ReplayFile string `toml:"replay_file"`
	// ReplayPace is the fixed delay between replayed ticks; zero replays as
	// fast as the engine pulls.
	ReplayPace  duration `toml:"replay_pace"`
	DepthLevels int      `toml:"depth_levels"`
}

// TradingConfig holds strategy and execution parameters.
type TradingConfig struct {
	Symbols           []string         `toml:"symbols"`
	MinSpread         float64          `toml:"min_spread"`
	DefaultQuantity   int64            `toml:"default_quantity"`
	PerSymbolQuantity map[string]int64 `toml:"per_symbol_quantity"`
	WindowStart       clock            `toml:"window_start"`
	WindowEnd         clock            `toml:"window_end"`
	UseLimitOrders    bool             `toml:"use_limit_orders"`
	BuyBuffer         float64          `toml:"buy_buffer"`
	SellBuffer        float64          `toml:"sell_buffer"`
	PollInterval      duration         `toml:"poll_interval"`
	PollTimeout       duration         `toml:"poll_timeout"`
	HeartbeatInterval duration         `toml:"heartbeat_interval"`
}

// QuantityFor returns the configured quantity for a symbol, falling back to
// the default quantity.
func (t TradingConfig) QuantityFor(symbol string) int64 {
	if q, ok := t.PerSymbolQuantity[symbol]; ok {
		return q
	}
	return t.DefaultQuantity
}

// RiskConfig holds the safety-manager limits.
type RiskConfig struct {
	MaxTradesPerMinute int     `toml:"max_trades_per_minute"`
	MaxOpenExposure    int     `toml:"max_open_exposure"`
	MaxFailedFills     int     `toml:"max_failed_fills"`
	MaxSlippagePerLeg  float64 `toml:"max_slippage_per_leg"`
}

// RedisConfig holds connection parameters for the telemetry publisher.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// PostgresConfig holds connection parameters for the instrument master.
type PostgresConfig struct {
	Enabled  bool   `toml:"enabled"`
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"max_conns"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "40ms", "3s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// clock is a local wall-clock time of day ("09:15") used for the trading
// window bounds.
type clock struct {
	Hour   int
	Minute int
}

// UnmarshalText parses "HH:MM".
func (c *clock) UnmarshalText(text []byte) error {
	t, err := time.Parse("15:04", string(text))
	if err != nil {
		return fmt.Errorf("config: invalid clock %q: %w", string(text), err)
	}
	c.Hour, c.Minute = t.Hour(), t.Minute()
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (c clock) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)), nil
}

// Minutes returns minutes since midnight.
func (c clock) Minutes() int { return c.Hour*60 + c.Minute }

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Venues: VenuesConfig{
			Primary:   "NSE",
			Secondary: "BSE",
		},
		Feed: FeedConfig{
			DepthLevels: 5,
		},
		Trading: TradingConfig{
			MinSpread:         1.0,
			DefaultQuantity:   1,
			PerSymbolQuantity: map[string]int64{},
			WindowStart:       clock{Hour: 9, Minute: 15},
			WindowEnd:         clock{Hour: 15, Minute: 30},
			UseLimitOrders:    true,
			BuyBuffer:         0.10,
			SellBuffer:        0.10,
			PollInterval:      duration{40 * time.Millisecond},
			PollTimeout:       duration{3 * time.Second},
			HeartbeatInterval: duration{5 * time.Second},
		},
		Risk: RiskConfig{
			MaxTradesPerMinute: 4,
			MaxOpenExposure:    1,
			MaxFailedFills:     2,
			MaxSlippagePerLeg:  0.25,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "arbx",
			User:     "arbx",
			SSLMode:  "disable",
			MaxConns: 4,
		},
		Mode:     "live",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":    true,
	"replay":  true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, replay, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Venues.Primary == "" || c.Venues.Secondary == "" {
		errs = append(errs, "venues: primary and secondary must both be set")
	}
	if c.Venues.Primary == c.Venues.Secondary {
		errs = append(errs, "venues: primary and secondary must differ")
	}

	// Broker credentials are only needed when orders can actually be placed.
	if strings.ToLower(c.Mode) == "live" {
		if c.Broker.APIKey == "" || c.Broker.ClientID == "" {
			errs = append(errs, "broker: api_key and client_id are required for live mode")
		}
		if c.Broker.Pin == "" || c.Broker.TOTPSecret == "" {
			errs = append(errs, "broker: pin and totp_secret are required for live mode")
		}
	}
	if mode := strings.ToLower(c.Mode); mode == "live" || mode == "monitor" {
		if c.Feed.WsURL == "" {
			errs = append(errs, "feed: ws_url is required for live and monitor modes")
		}
	}
	if strings.ToLower(c.Mode) == "replay" && c.Feed.ReplayFile == "" {
		errs = append(errs, "feed: replay_file is required for replay mode")
	}

	if len(c.Trading.Symbols) == 0 {
		errs = append(errs, "trading: at least one symbol must be configured")
	}
	if c.Trading.MinSpread <= 0 {
		errs = append(errs, "trading: min_spread must be > 0")
	}
	if c.Trading.DefaultQuantity < 1 {
		errs = append(errs, "trading: default_quantity must be >= 1")
	}
	if c.Trading.WindowStart.Minutes() >= c.Trading.WindowEnd.Minutes() {
		errs = append(errs, "trading: window_start must be before window_end")
	}
	if c.Trading.PollInterval.Duration <= 0 {
		errs = append(errs, "trading: poll_interval must be > 0")
	}
	if c.Trading.PollTimeout.Duration < c.Trading.PollInterval.Duration {
		errs = append(errs, "trading: poll_timeout must be >= poll_interval")
	}
	if c.Feed.DepthLevels < 1 {
		errs = append(errs, "feed: depth_levels must be >= 1")
	}

	if c.Risk.MaxTradesPerMinute < 1 {
		errs = append(errs, "risk: max_trades_per_minute must be >= 1")
	}
	if c.Risk.MaxOpenExposure < 1 {
		errs = append(errs, "risk: max_open_exposure must be >= 1")
	}
	if c.Risk.MaxFailedFills < 1 {
		errs = append(errs, "risk: max_failed_fills must be >= 1")
	}
	if c.Risk.MaxSlippagePerLeg <= 0 {
		errs = append(errs, "risk: max_slippage_per_leg must be > 0")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.MaxConns < 1 {
			errs = append(errs, "postgres: max_conns must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
