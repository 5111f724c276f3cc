// Package executor places matched opposing order pairs against the venue
// gateway and guarantees every pair ends in exactly one well-defined state:
// blocked, success, or failure with a sized square-off.
package executor

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/arbx-trading/arbx/internal/domain"
	"github.com/arbx-trading/arbx/internal/safety"
)

// Config holds the execution parameters consumed per pair.
type Config struct {
	UseLimitOrders    bool
	BuyBuffer         float64 // added above the ask on buy limit legs
	SellBuffer        float64 // subtracted below the bid on sell limit legs
	PollInterval      time.Duration
	PollTimeout       time.Duration
	MaxSlippagePerLeg float64
}

// Executor executes spread signals as near-simultaneous leg pairs. The two
// venues never fill atomically, so the executor's whole job is reconciling
// the state where exactly one leg fills.
type Executor struct {
	safety      *safety.Manager
	gateway     domain.VenueGateway
	session     domain.SessionProvider
	instruments domain.InstrumentResolver
	pool        *Pool
	cfg         Config
	logger      *slog.Logger
}

// New creates an Executor. The pool is owned by the caller and shared across
// pair executions.
func New(
	sm *safety.Manager,
	gateway domain.VenueGateway,
	session domain.SessionProvider,
	instruments domain.InstrumentResolver,
	pool *Pool,
	cfg Config,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		safety:      sm,
		gateway:     gateway,
		session:     session,
		instruments: instruments,
		pool:        pool,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "executor")),
	}
}

// ExecutePair runs one pair attempt for the signal. Admission is checked
// before any mutation; once admitted the symbol is registered open, both
// legs are dispatched concurrently, outcomes are reconciled, and the open
// marker is released exactly once on every exit path.
func (e *Executor) ExecutePair(ctx context.Context, sig domain.SpreadSignal, snap domain.QuoteSnapshot) (domain.ExecutionSummary, error) {
	summary := domain.ExecutionSummary{Signal: sig}

	if !e.safety.CanTrade(sig.Symbol) {
		summary.Outcome = domain.OutcomeBlocked
		summary.Reason = "risk limits"
		e.logger.Warn("pair blocked by safety manager",
			slog.String("symbol", sig.Symbol),
			slog.Float64("spread", sig.Spread),
		)
		return summary, nil
	}

	buyLeg, sellLeg := e.buildLegs(sig, snap)

	e.safety.RegisterOpen(sig.Symbol)
	defer e.safety.RegisterClose(sig.Symbol)

	// Engine shutdown must not abort an in-flight placement: a hard abort
	// would leave the leg in an unknown state at the venue.
	legCtx := context.WithoutCancel(ctx)
	buyCh := e.pool.Submit(legCtx, func(ctx context.Context) domain.LegResult {
		return e.placeLeg(ctx, buyLeg)
	})
	sellCh := e.pool.Submit(legCtx, func(ctx context.Context) domain.LegResult {
		return e.placeLeg(ctx, sellLeg)
	})
	summary.Buy = <-buyCh
	summary.Sell = <-sellCh

	e.reconcile(legCtx, &summary)
	e.safety.RecordTrade(sig.Symbol, sig.Spread, summary.Outcome == domain.OutcomeSuccess)
	return summary, nil
}

// buildLegs constructs the opposing pair from the signal and the snapshot's
// executable prices. With limit orders enabled, the buy leg bids slightly
// above the ask and the sell leg offers slightly below the bid to improve
// fill probability; otherwise both legs go out as market orders. Either way
// the time-in-force is IOC so an unfilled remainder never rests.
func (e *Executor) buildLegs(sig domain.SpreadSignal, snap domain.QuoteSnapshot) (domain.OrderLeg, domain.OrderLeg) {
	buyQuote := quoteFor(snap, sig.BuyVenue)
	sellQuote := quoteFor(snap, sig.SellVenue)

	buyLeg := domain.OrderLeg{
		Venue:    sig.BuyVenue,
		Symbol:   sig.Symbol,
		Side:     domain.SideBuy,
		Quantity: sig.Quantity,
		Kind:     domain.OrderKindMarket,
		TIF:      domain.TIFImmediateOrCancel,
		Product:  domain.ProductIntraday,
	}
	sellLeg := domain.OrderLeg{
		Venue:    sig.SellVenue,
		Symbol:   sig.Symbol,
		Side:     domain.SideSell,
		Quantity: sig.Quantity,
		Kind:     domain.OrderKindMarket,
		TIF:      domain.TIFImmediateOrCancel,
		Product:  domain.ProductIntraday,
	}

	if e.cfg.UseLimitOrders {
		buyLeg.Kind = domain.OrderKindLimit
		buyLeg.LimitPrice = buyQuote.BestAsk + e.cfg.BuyBuffer
		sellLeg.Kind = domain.OrderKindLimit
		sellLeg.LimitPrice = sellQuote.BestBid - e.cfg.SellBuffer
	}
	return buyLeg, sellLeg
}

// reconcile decides the pair outcome and invokes the failsafe when needed.
func (e *Executor) reconcile(ctx context.Context, summary *domain.ExecutionSummary) {
	buyBreach := e.slippageBreach(summary.Buy)
	sellBreach := e.slippageBreach(summary.Sell)

	if summary.Buy.Filled() && summary.Sell.Filled() && !buyBreach && !sellBreach {
		summary.Outcome = domain.OutcomeSuccess
		summary.RealizedPnL = (summary.Sell.AvgFillPrice - summary.Buy.AvgFillPrice) * float64(summary.Buy.FilledQty)
		e.logger.Info("pair completed",
			slog.String("symbol", summary.Signal.Symbol),
			slog.Float64("spread", summary.Signal.Spread),
			slog.Float64("realized_pnl", summary.RealizedPnL),
		)
		return
	}

	summary.Outcome = domain.OutcomeFailure
	switch {
	case buyBreach || sellBreach:
		summary.Reason = "slippage breach"
	case !summary.Buy.Filled() && !summary.Sell.Filled():
		summary.Reason = "both legs unfilled"
	default:
		summary.Reason = "one-sided fill"
	}
	e.logger.Error("pair reconciliation failed, invoking failsafe",
		slog.String("symbol", summary.Signal.Symbol),
		slog.String("reason", summary.Reason),
		slog.String("buy_state", string(summary.Buy.State)),
		slog.String("sell_state", string(summary.Sell.State)),
	)
	e.failsafe(ctx, summary)
}

// slippageBreach reports whether the leg's realized price diverged from its
// expected price by more than the configured per-leg maximum. Expected is
// the submitted limit price for limit orders; market fills define their own
// expectation and never breach.
func (e *Executor) slippageBreach(res domain.LegResult) bool {
	if !res.AnyFill() {
		return false
	}
	expected := res.AvgFillPrice
	if res.Leg.Kind == domain.OrderKindLimit {
		expected = res.Leg.LimitPrice
	}
	return math.Abs(res.AvgFillPrice-expected) > e.cfg.MaxSlippagePerLeg
}

// failsafe squares off every leg with any fill by submitting an
// opposite-side market IOC order sized to the actually filled quantity, for
// all such legs concurrently. Zero-fill legs need no square-off. A failed
// square-off is a manual-intervention condition: logged at highest severity
// and not retried.
func (e *Executor) failsafe(ctx context.Context, summary *domain.ExecutionSummary) {
	type pending struct {
		res *domain.LegResult
		ch  <-chan domain.LegResult
	}
	var waits []pending

	for _, res := range []*domain.LegResult{&summary.Buy, &summary.Sell} {
		if !res.AnyFill() {
			continue
		}
		closeLeg := domain.OrderLeg{
			Venue:    res.Leg.Venue,
			Symbol:   res.Leg.Symbol,
			Side:     res.Leg.Side.Opposite(),
			Quantity: res.FilledQty,
			Kind:     domain.OrderKindMarket,
			TIF:      domain.TIFImmediateOrCancel,
			Product:  res.Leg.Product,
		}
		ch := e.pool.Submit(ctx, func(ctx context.Context) domain.LegResult {
			return e.placeLeg(ctx, closeLeg)
		})
		waits = append(waits, pending{res: res, ch: ch})
	}

	for _, w := range waits {
		closeRes := <-w.ch
		if closeRes.AnyFill() && closeRes.FilledQty >= w.res.FilledQty {
			w.res.State = domain.LegSquaredOff
			e.logger.Warn("leg squared off",
				slog.String("venue", w.res.Leg.Venue),
				slog.String("symbol", w.res.Leg.Symbol),
				slog.Int64("qty", w.res.FilledQty),
			)
			continue
		}
		w.res.State = domain.LegSquareOffFailed
		e.logger.Error("FATAL: square-off failed, manual intervention required",
			slog.String("venue", w.res.Leg.Venue),
			slog.String("symbol", w.res.Leg.Symbol),
			slog.String("order_id", closeRes.OrderID),
			slog.Int64("unhedged_qty", w.res.FilledQty-closeRes.FilledQty),
		)
	}
}

// quoteFor selects the snapshot side matching the venue.
func quoteFor(snap domain.QuoteSnapshot, venue string) domain.VenueQuote {
	if snap.A.Venue == venue {
		return snap.A
	}
	return snap.B
}
