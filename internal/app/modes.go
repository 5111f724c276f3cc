package app

import (
	"context"
	"log/slog"

	"github.com/arbx-trading/arbx/internal/detector"
	"github.com/arbx-trading/arbx/internal/domain"
	"github.com/arbx-trading/arbx/internal/engine"
	"github.com/arbx-trading/arbx/internal/executor"
)

// LiveMode runs the full pipeline: live feed, detection, and real order
// execution through the broker gateway.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	pool := executor.NewPool(0)
	defer pool.Close()

	exec := executor.New(
		deps.Safety,
		deps.Gateway,
		deps.Session,
		deps.Resolver,
		pool,
		executor.Config{
			UseLimitOrders:    a.cfg.Trading.UseLimitOrders,
			BuyBuffer:         a.cfg.Trading.BuyBuffer,
			SellBuffer:        a.cfg.Trading.SellBuffer,
			PollInterval:      a.cfg.Trading.PollInterval.Duration,
			PollTimeout:       a.cfg.Trading.PollTimeout.Duration,
			MaxSlippagePerLeg: a.cfg.Risk.MaxSlippagePerLeg,
		},
		a.logger,
	)

	execute := func(ctx context.Context, sig domain.SpreadSignal, snap domain.QuoteSnapshot) (domain.ExecutionSummary, error) {
		summary, err := exec.ExecutePair(ctx, sig, snap)
		if err != nil {
			return summary, err
		}
		a.journal(ctx, summary)
		return summary, nil
	}

	return a.buildEngine(deps, execute).Run(ctx)
}

// ReplayMode replays a recorded session through the detector without
// touching the broker. Signals are journaled as detection-only outcomes.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	return a.buildEngine(deps, a.dryRunExecute()).Run(ctx)
}

// MonitorMode consumes the live feed and reports opportunities without
// placing orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	return a.buildEngine(deps, a.dryRunExecute()).Run(ctx)
}

// dryRunExecute returns an execution callback that records the signal
// without trading.
func (a *App) dryRunExecute() domain.ExecuteFunc {
	return func(ctx context.Context, sig domain.SpreadSignal, snap domain.QuoteSnapshot) (domain.ExecutionSummary, error) {
		a.logger.Info("signal detected, execution disabled",
			slog.String("symbol", sig.Symbol),
			slog.Float64("spread", sig.Spread),
			slog.String("buy_venue", sig.BuyVenue),
			slog.String("sell_venue", sig.SellVenue),
		)
		summary := domain.ExecutionSummary{
			Signal:  sig,
			Outcome: domain.OutcomeBlocked,
			Reason:  "detection only",
		}
		a.journal(ctx, summary)
		return summary, nil
	}
}

// journal pushes one execution summary to the configured sinks. Sink
// failures never affect the trading path.
func (a *App) journal(ctx context.Context, summary domain.ExecutionSummary) {
	deps := a.deps
	if deps == nil {
		return
	}
	if deps.Telemetry != nil {
		deps.Telemetry.PublishExecution(ctx, summary)
	}
	if deps.Store != nil {
		storeCtx := context.WithoutCancel(ctx)
		if err := deps.Store.InsertExecution(storeCtx, summary); err != nil {
			a.logger.Warn("execution journal write failed", slog.Any("error", err))
		}
	}
}

// buildEngine assembles the decision engine for the current configuration.
func (a *App) buildEngine(deps *Dependencies, execute domain.ExecuteFunc) *engine.Engine {
	a.deps = deps

	det := detector.New(a.cfg.Trading.MinSpread, a.cfg.Trading.MinSpread)

	var hook domain.TelemetryHook
	var statusFn func(ctx context.Context, status string)
	if deps.Telemetry != nil {
		hook = deps.Telemetry.SnapshotHook()
		statusFn = deps.Telemetry.Heartbeat
	}

	return engine.New(
		engine.Config{
			PrimaryVenue:   a.cfg.Venues.Primary,
			SecondaryVenue: a.cfg.Venues.Secondary,
			Symbols:        a.cfg.Trading.Symbols,
			Window: engine.Window{
				StartMinute: a.cfg.Trading.WindowStart.Minutes(),
				EndMinute:   a.cfg.Trading.WindowEnd.Minutes(),
			},
			HeartbeatInterval: a.cfg.Trading.HeartbeatInterval.Duration,
			StatusFunc:        statusFn,
		},
		deps.Feed,
		det,
		execute,
		hook,
		a.cfg.Trading.QuantityFor,
		a.logger,
	)
}
