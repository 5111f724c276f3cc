package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbx-trading/arbx/internal/domain"
)

// cancelGraceDelay is how long to wait after a poll timeout before
// re-checking an IOC order that the venue should have auto-cancelled.
const cancelGraceDelay = 500 * time.Millisecond

// placeLeg runs the full single-leg protocol: session check, instrument
// resolution, submission, bounded status polling, IOC cancellation handling,
// and fill classification. It always returns a terminal LegResult; errors
// are carried inside the result, never propagated.
func (e *Executor) placeLeg(ctx context.Context, leg domain.OrderLeg) domain.LegResult {
	log := e.logger.With(
		slog.String("venue", leg.Venue),
		slog.String("symbol", leg.Symbol),
		slog.String("side", string(leg.Side)),
	)

	res := domain.LegResult{Leg: leg, State: domain.LegSubmitted}

	// A leg must never reach the wire without a valid session.
	if err := e.session.Ensure(ctx); err != nil {
		log.Error("session unavailable, failing leg", slog.String("error", err.Error()))
		res.State = domain.LegRejected
		res.Err = fmt.Errorf("executor: %w: %v", domain.ErrSessionUnavailable, err)
		return res
	}

	// Unresolved instruments fail immediately, before any network call.
	inst, err := e.instruments.Resolve(leg.Symbol, leg.Venue)
	if err != nil {
		log.Error("instrument not resolved, failing leg", slog.String("error", err.Error()))
		res.State = domain.LegRejected
		res.Err = fmt.Errorf("executor: %w: %s on %s", domain.ErrNoInstrument, leg.Symbol, leg.Venue)
		return res
	}

	ack, err := e.gateway.PlaceOrder(ctx, inst, leg)
	if err != nil {
		log.Error("order placement failed", slog.String("error", err.Error()))
		res.State = domain.LegRejected
		res.Err = fmt.Errorf("executor: place order: %w", err)
		return res
	}
	res.OrderID = ack.OrderID
	res.State = domain.LegPolling
	log.Info("order placed",
		slog.String("order_id", ack.OrderID),
		slog.Int64("qty", leg.Quantity),
		slog.String("kind", string(leg.Kind)),
	)

	final := e.pollUntilTerminal(ctx, ack, log)
	return e.classify(res, final, log)
}

// pollUntilTerminal polls order status at a fixed interval until a terminal
// venue state is observed or the bounded timeout elapses. On timeout for an
// IOC order the venue is assumed to auto-cancel; after a short grace delay
// the status is re-checked once, and an explicit cancel is requested if the
// order is still live.
func (e *Executor) pollUntilTerminal(ctx context.Context, ack domain.OrderAck, log *slog.Logger) domain.OrderAck {
	deadline := time.Now().Add(e.cfg.PollTimeout)
	last := ack

	for time.Now().Before(deadline) {
		cur, err := e.gateway.OrderStatus(ctx, ack.OrderID)
		if err != nil {
			// Transient fetch failures are absorbed by the bounded loop.
			log.Debug("order status fetch failed", slog.String("error", err.Error()))
		} else {
			last = cur
			if cur.Status.Terminal() {
				return cur
			}
		}

		select {
		case <-ctx.Done():
			return last
		case <-time.After(e.cfg.PollInterval):
		}
	}

	log.Warn("order still pending after poll timeout",
		slog.String("order_id", ack.OrderID),
		slog.String("status", string(last.Status)),
	)

	// IOC remainder should already be cancelled venue-side; verify once.
	select {
	case <-ctx.Done():
		return last
	case <-time.After(cancelGraceDelay):
	}
	if cur, err := e.gateway.OrderStatus(ctx, ack.OrderID); err == nil {
		last = cur
		if cur.Status.Terminal() {
			return cur
		}
	}

	if err := e.gateway.CancelOrder(ctx, ack.OrderID); err != nil {
		log.Error("anomaly: cancellation of stale order failed",
			slog.String("order_id", ack.OrderID),
			slog.String("error", err.Error()),
		)
		return last
	}
	last.Status = domain.StatusCancelled
	return last
}

// classify maps the final venue ack onto the leg's terminal state using the
// extracted filled quantity and average fill price.
func (e *Executor) classify(res domain.LegResult, final domain.OrderAck, log *slog.Logger) domain.LegResult {
	res.FilledQty = final.FilledQty
	res.AvgFillPrice = final.FillPrice

	switch {
	case final.FilledQty >= res.Leg.Quantity:
		res.State = domain.LegFilled
	case final.FilledQty > 0:
		res.State = domain.LegPartial
		log.Warn("partial fill",
			slog.String("order_id", res.OrderID),
			slog.Int64("filled", final.FilledQty),
			slog.Int64("requested", res.Leg.Quantity),
		)
	case final.Status == domain.StatusCancelled:
		res.State = domain.LegCancelled
	case final.Status == domain.StatusRejected:
		res.State = domain.LegRejected
		res.Err = fmt.Errorf("executor: %w: order %s", domain.ErrVenueRejected, res.OrderID)
	default:
		// Never left PENDING/OPEN with zero fill except on poll exhaustion.
		res.State = domain.LegCancelled
		res.Err = fmt.Errorf("executor: %w: order %s", domain.ErrPollTimeout, res.OrderID)
	}
	return res
}
