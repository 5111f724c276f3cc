// Package engine coordinates tick ingestion, quote state, spread detection,
// and execution dispatch for one pair of venues.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbx-trading/arbx/internal/detector"
	"github.com/arbx-trading/arbx/internal/domain"
)

// errPause is how long the consumer sleeps after a failed iteration so a
// poisoned tick cannot spin the loop.
const errPause = time.Second

// Window is a closed-open trading window [start, end) in local wall-clock
// minutes since midnight. Ticks outside the window still update quote state
// but never produce snapshots or signals.
type Window struct {
	StartMinute int
	EndMinute   int
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= w.StartMinute && m < w.EndMinute
}

// Config holds the engine's wiring-time parameters.
type Config struct {
	PrimaryVenue      string
	SecondaryVenue    string
	Symbols           []string
	Window            Window
	HeartbeatInterval time.Duration

	// StatusFunc, when set, is invoked on every heartbeat with a short
	// liveness status string.
	StatusFunc func(ctx context.Context, status string)
}

// Engine is the single logical consumer of the tick stream. It maintains the
// latest tick per (symbol, venue), builds paired snapshots on demand, drives
// the detector, and invokes the execution callback on a signal. A heartbeat
// goroutine runs alongside it and is cancelled together with it.
type Engine struct {
	cfg         Config
	feed        domain.Feed
	det         *detector.Detector
	execute     domain.ExecuteFunc
	telemetry   domain.TelemetryHook
	quantityFor func(symbol string) int64

	mu             sync.RWMutex
	primaryTicks   map[string]domain.Tick
	secondaryTicks map[string]domain.Tick

	logger *slog.Logger
	now    func() time.Time
}

// New creates an Engine. telemetry may be nil; quantityFor must resolve the
// required quantity for every watched symbol.
func New(
	cfg Config,
	feed domain.Feed,
	det *detector.Detector,
	execute domain.ExecuteFunc,
	telemetry domain.TelemetryHook,
	quantityFor func(symbol string) int64,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:            cfg,
		feed:           feed,
		det:            det,
		execute:        execute,
		telemetry:      telemetry,
		quantityFor:    quantityFor,
		primaryTicks:   make(map[string]domain.Tick),
		secondaryTicks: make(map[string]domain.Tick),
		logger:         logger.With(slog.String("component", "engine")),
		now:            time.Now,
	}
}

// Run starts the consumer loop and the heartbeat and blocks until the
// context is cancelled. Shutdown propagates cooperatively to both.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("decision engine started",
		slog.Any("symbols", e.cfg.Symbols),
		slog.String("primary", e.cfg.PrimaryVenue),
		slog.String("secondary", e.cfg.SecondaryVenue),
		slog.Float64("min_spread", e.det.Threshold()),
	)
	defer e.logger.Info("decision engine stopped")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.heartbeatLoop(ctx) })
	g.Go(func() error {
		// A closed feed ends the run; stop the heartbeat with it.
		defer cancel()
		return e.consumeLoop(ctx)
	})
	return g.Wait()
}

// consumeLoop pulls ticks in strict arrival order. A single bad tick never
// terminates the loop: iteration errors are logged and followed by a brief
// pause. Only cancellation or a closed feed ends consumption.
func (e *Engine) consumeLoop(ctx context.Context) error {
	for {
		tick, err := e.feed.NextTick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, domain.ErrFeedClosed) {
				e.logger.Info("feed closed, stopping consumer")
				return nil
			}
			e.logger.Error("tick fetch failed", slog.String("error", err.Error()))
			if !sleepCtx(ctx, errPause) {
				return ctx.Err()
			}
			continue
		}

		if err := e.safeProcess(ctx, tick); err != nil {
			e.logger.Error("tick processing failed",
				slog.String("symbol", tick.Symbol),
				slog.String("venue", tick.Venue),
				slog.String("error", err.Error()),
			)
			if !sleepCtx(ctx, errPause) {
				return ctx.Err()
			}
		}
	}
}

// safeProcess shields the consumer loop from panics in per-tick processing,
// including the host-supplied execution callback.
func (e *Engine) safeProcess(ctx context.Context, tick domain.Tick) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.process(ctx, tick)
}

// process handles one tick: update venue state, honor the trading window,
// build the paired snapshot, publish telemetry, evaluate, and dispatch.
func (e *Engine) process(ctx context.Context, tick domain.Tick) error {
	if !e.updateTick(tick) {
		e.logger.Debug("tick for unknown venue dropped", slog.String("venue", tick.Venue))
		return nil
	}

	if !e.cfg.Window.Contains(e.now()) {
		// State is updated; detection pauses outside the window.
		return nil
	}

	snap, ok := e.Snapshot(tick.Symbol)
	if !ok {
		return nil
	}

	e.invokeTelemetry(ctx, snap)

	sig, ok := e.det.Evaluate(snap, e.quantityFor(snap.Symbol))
	if !ok {
		return nil
	}
	e.logger.Info("spread signal detected",
		slog.String("symbol", sig.Symbol),
		slog.Float64("spread", sig.Spread),
		slog.String("buy_venue", sig.BuyVenue),
		slog.String("sell_venue", sig.SellVenue),
		slog.Int64("qty", sig.Quantity),
	)

	summary, err := e.execute(ctx, sig, snap)
	if err != nil {
		return fmt.Errorf("execute signal %s: %w", sig.ID, err)
	}
	e.logger.Info("pair attempt finished",
		slog.String("symbol", sig.Symbol),
		slog.String("outcome", string(summary.Outcome)),
		slog.String("reason", summary.Reason),
	)
	return nil
}

// updateTick stores the tick in the matching venue map. Returns false for
// ticks from venues the engine is not configured for.
func (e *Engine) updateTick(tick domain.Tick) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch tick.Venue {
	case e.cfg.PrimaryVenue:
		e.primaryTicks[tick.Symbol] = tick
	case e.cfg.SecondaryVenue:
		e.secondaryTicks[tick.Symbol] = tick
	default:
		return false
	}
	return true
}

// Snapshot builds the paired view for a symbol. It fails until both venues
// have produced at least one tick.
func (e *Engine) Snapshot(symbol string) (domain.QuoteSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	primary, okP := e.primaryTicks[symbol]
	secondary, okS := e.secondaryTicks[symbol]
	if !okP || !okS {
		return domain.QuoteSnapshot{}, false
	}
	return domain.QuoteSnapshot{
		Symbol: symbol,
		A:      domain.QuoteFromTick(primary),
		B:      domain.QuoteFromTick(secondary),
	}, true
}

// invokeTelemetry calls the host hook, swallowing panics: observability must
// never affect tick processing.
func (e *Engine) invokeTelemetry(ctx context.Context, snap domain.QuoteSnapshot) {
	if e.telemetry == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("telemetry hook panicked", slog.Any("panic", r))
		}
	}()
	e.telemetry(ctx, snap)
}

// sleepCtx sleeps for d unless the context is cancelled first. Returns false
// on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
