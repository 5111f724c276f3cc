package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arbx-trading/arbx/internal/config"
	"github.com/arbx-trading/arbx/internal/domain"
	"github.com/arbx-trading/arbx/internal/feed"
	"github.com/arbx-trading/arbx/internal/instrument"
	"github.com/arbx-trading/arbx/internal/safety"
	"github.com/arbx-trading/arbx/internal/store/postgres"
	"github.com/arbx-trading/arbx/internal/telemetry"
	"github.com/arbx-trading/arbx/internal/venue"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Feed      domain.Feed
	Resolver  *instrument.StaticResolver
	Safety    *safety.Manager
	Session   *venue.Session       // nil in replay mode and credential-less monitor mode
	Gateway   domain.VenueGateway  // nil outside live mode
	Telemetry *telemetry.Publisher // nil when Redis is disabled
	Store     *postgres.Client     // nil when Postgres is disabled
}

// needsSession reports whether a mode talks to the broker.
func needsSession(mode string) bool {
	switch mode {
	case "live", "monitor":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	mode := strings.ToLower(cfg.Mode)
	deps := &Dependencies{
		Safety: safety.NewManager(safety.Limits{
			MaxTradesPerMinute: cfg.Risk.MaxTradesPerMinute,
			MaxOpenExposure:    cfg.Risk.MaxOpenExposure,
			MaxFailedFills:     cfg.Risk.MaxFailedFills,
			MaxSlippagePerLeg:  cfg.Risk.MaxSlippagePerLeg,
		}, logger),
	}

	// --- Instrument master ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.Store = pgClient

		if err := pgClient.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		instruments, err := pgClient.LoadInstruments(ctx)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Resolver = instrument.NewStaticResolver(instruments)
	} else {
		instruments := make([]domain.Instrument, 0, len(cfg.Instruments))
		for _, ic := range cfg.Instruments {
			instruments = append(instruments, domain.Instrument{
				Symbol:        ic.Symbol,
				Venue:         ic.Venue,
				TradingSymbol: ic.TradingSymbol,
				Token:         ic.Token,
			})
		}
		deps.Resolver = instrument.NewStaticResolver(instruments)
	}
	if deps.Resolver.Len() == 0 && mode == "live" {
		cleanup()
		return nil, nil, fmt.Errorf("wire: live mode requires a non-empty instrument table")
	}

	// --- Telemetry ---
	if cfg.Redis.Enabled {
		pub, err := telemetry.NewPublisher(ctx, telemetry.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Telemetry = pub
	}

	// --- Broker session and gateway ---
	// Monitor mode can run without credentials; the feed then connects
	// unauthenticated.
	if needsSession(mode) && (mode == "live" || cfg.Broker.TOTPSecret != "") {
		session := venue.NewSession(venue.SessionConfig{
			BaseURL:    cfg.Broker.BaseURL,
			APIKey:     cfg.Broker.APIKey,
			ClientID:   cfg.Broker.ClientID,
			Pin:        cfg.Broker.Pin,
			TOTPSecret: cfg.Broker.TOTPSecret,
		}, logger)
		if err := session.Ensure(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: broker session: %w", err)
		}
		deps.Session = session
	}
	if mode == "live" {
		deps.Gateway = venue.NewClient(venue.ClientConfig{
			BaseURL: cfg.Broker.BaseURL,
			APIKey:  cfg.Broker.APIKey,
		}, deps.Session, logger)
	}

	// --- Market data ---
	switch mode {
	case "replay":
		replay, err := feed.NewReplayFeed(cfg.Feed.ReplayFile, cfg.Feed.ReplayPace.Duration)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: replay feed: %w", err)
		}
		closers = append(closers, func() { _ = replay.Close() })
		deps.Feed = replay
	default:
		var tokenFn func() string
		if deps.Session != nil {
			tokenFn = deps.Session.FeedToken
		}
		ws := feed.NewWSFeed(feed.WSConfig{
			URL:         cfg.Feed.WsURL,
			Venues:      []string{cfg.Venues.Primary, cfg.Venues.Secondary},
			Symbols:     cfg.Trading.Symbols,
			DepthLevels: cfg.Feed.DepthLevels,
			TokenFunc:   tokenFn,
		}, logger)
		if err := ws.Connect(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = ws.Close() })
		deps.Feed = ws
	}

	return deps, cleanup, nil
}
