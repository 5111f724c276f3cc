package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	// Symbols are matched against uppercased feed ticks.
	for i, s := range cfg.Trading.Symbols {
		cfg.Trading.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBX_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Venues ──
	setStr(&cfg.Venues.Primary, "ARBX_VENUE_PRIMARY")
	setStr(&cfg.Venues.Secondary, "ARBX_VENUE_SECONDARY")

	// ── Broker ──
	setStr(&cfg.Broker.BaseURL, "ARBX_BROKER_BASE_URL")
	setStr(&cfg.Broker.APIKey, "ARBX_BROKER_API_KEY")
	setStr(&cfg.Broker.ClientID, "ARBX_BROKER_CLIENT_ID")
	setStr(&cfg.Broker.Pin, "ARBX_BROKER_PIN")
	setStr(&cfg.Broker.TOTPSecret, "ARBX_BROKER_TOTP_SECRET")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "ARBX_FEED_WS_URL")
	setStr(&cfg.Feed.ReplayFile, "ARBX_FEED_REPLAY_FILE")
	setDuration(&cfg.Feed.ReplayPace, "ARBX_FEED_REPLAY_PACE")
	setInt(&cfg.Feed.DepthLevels, "ARBX_FEED_DEPTH_LEVELS")

	// ── Trading ──
	setStringSlice(&cfg.Trading.Symbols, "ARBX_TRADING_SYMBOLS")
	setFloat64(&cfg.Trading.MinSpread, "ARBX_TRADING_MIN_SPREAD")
	setInt64(&cfg.Trading.DefaultQuantity, "ARBX_TRADING_DEFAULT_QUANTITY")
	setClock(&cfg.Trading.WindowStart, "ARBX_TRADING_WINDOW_START")
	setClock(&cfg.Trading.WindowEnd, "ARBX_TRADING_WINDOW_END")
	setBool(&cfg.Trading.UseLimitOrders, "ARBX_TRADING_USE_LIMIT_ORDERS")
	setFloat64(&cfg.Trading.BuyBuffer, "ARBX_TRADING_BUY_BUFFER")
	setFloat64(&cfg.Trading.SellBuffer, "ARBX_TRADING_SELL_BUFFER")
	setDuration(&cfg.Trading.PollInterval, "ARBX_TRADING_POLL_INTERVAL")
	setDuration(&cfg.Trading.PollTimeout, "ARBX_TRADING_POLL_TIMEOUT")
	setDuration(&cfg.Trading.HeartbeatInterval, "ARBX_TRADING_HEARTBEAT_INTERVAL")

	// ── Risk ──
	setInt(&cfg.Risk.MaxTradesPerMinute, "ARBX_RISK_MAX_TRADES_PER_MINUTE")
	setInt(&cfg.Risk.MaxOpenExposure, "ARBX_RISK_MAX_OPEN_EXPOSURE")
	setInt(&cfg.Risk.MaxFailedFills, "ARBX_RISK_MAX_FAILED_FILLS")
	setFloat64(&cfg.Risk.MaxSlippagePerLeg, "ARBX_RISK_MAX_SLIPPAGE_PER_LEG")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBX_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBX_REDIS_POOL_SIZE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBX_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBX_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBX_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.MaxConns, "ARBX_POSTGRES_MAX_CONNS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBX_MODE")
	setStr(&cfg.LogLevel, "ARBX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setClock(dst *clock, key string) {
	if v := os.Getenv(key); v != "" {
		var c clock
		if err := c.UnmarshalText([]byte(v)); err == nil {
			*dst = c
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, strings.ToUpper(p))
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
