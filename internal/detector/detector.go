// Package detector evaluates paired quote snapshots for executable
// cross-venue arbitrage. Evaluation is pure: no state, no side effects.
package detector

import (
	"time"

	"github.com/google/uuid"

	"github.com/arbx-trading/arbx/internal/domain"
)

// Detector computes directional spreads from executable bid/ask prices and
// emits a signal when the better direction clears the threshold with enough
// liquidity on both sides.
type Detector struct {
	minSpread float64 // instance-level threshold
	globalMin float64 // configured global minimum
}

// New creates a Detector. The effective threshold for every evaluation is
// max(minSpread, globalMin).
func New(minSpread, globalMin float64) *Detector {
	return &Detector{minSpread: minSpread, globalMin: globalMin}
}

// Threshold returns the effective minimum spread.
func (d *Detector) Threshold() float64 {
	if d.globalMin > d.minSpread {
		return d.globalMin
	}
	return d.minSpread
}

// Evaluate returns a spread signal for the snapshot, or ok=false when no
// direction qualifies.
//
// Profit per unit is computed from executable prices, never last-traded:
//
//	buy A, sell B: B.bid - A.ask
//	buy B, sell A: A.bid - B.ask
//
// The larger direction is chosen; an exact tie prefers buy-A/sell-B. The
// chosen buy-side ask quantity and sell-side bid quantity must both cover
// the required quantity, otherwise the signal is suppressed even when the
// price qualifies.
func (d *Detector) Evaluate(snap domain.QuoteSnapshot, qty int64) (domain.SpreadSignal, bool) {
	threshold := d.Threshold()

	spreadBuyA := snap.B.BestBid - snap.A.BestAsk
	spreadBuyB := snap.A.BestBid - snap.B.BestAsk

	if spreadBuyA >= spreadBuyB && spreadBuyA >= threshold {
		if !hasLiquidity(snap.A.AskQty, snap.B.BidQty, qty) {
			return domain.SpreadSignal{}, false
		}
		return d.signal(snap.Symbol, spreadBuyA, snap.A.Venue, snap.B.Venue, qty), true
	}

	if spreadBuyB >= threshold {
		if !hasLiquidity(snap.B.AskQty, snap.A.BidQty, qty) {
			return domain.SpreadSignal{}, false
		}
		return d.signal(snap.Symbol, spreadBuyB, snap.B.Venue, snap.A.Venue, qty), true
	}

	return domain.SpreadSignal{}, false
}

// BestSpread returns the larger of the two directional executable spreads.
// The heartbeat uses it to report the current best opportunity without
// emitting signals.
func BestSpread(snap domain.QuoteSnapshot) float64 {
	spreadBuyA := snap.B.BestBid - snap.A.BestAsk
	spreadBuyB := snap.A.BestBid - snap.B.BestAsk
	if spreadBuyA >= spreadBuyB {
		return spreadBuyA
	}
	return spreadBuyB
}

func (d *Detector) signal(symbol string, spread float64, buyVenue, sellVenue string, qty int64) domain.SpreadSignal {
	return domain.SpreadSignal{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Spread:     spread,
		BuyVenue:   buyVenue,
		SellVenue:  sellVenue,
		Quantity:   qty,
		DetectedAt: time.Now().UTC(),
	}
}

// hasLiquidity checks that the buy-side ask quantity and sell-side bid
// quantity both cover the required quantity.
func hasLiquidity(buySideAskQty, sellSideBidQty, required int64) bool {
	return buySideAskQty >= required && sellSideBidQty >= required
}
