package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbx-trading/arbx/internal/domain"
)

func snapshot(aBid, aAsk, bBid, bAsk float64, qty int64) domain.QuoteSnapshot {
	return domain.QuoteSnapshot{
		Symbol: "RELIANCE",
		A: domain.VenueQuote{
			Venue:   "NSE",
			BestBid: aBid,
			BestAsk: aAsk,
			BidQty:  qty,
			AskQty:  qty,
		},
		B: domain.VenueQuote{
			Venue:   "BSE",
			BestBid: bBid,
			BestAsk: bAsk,
			BidQty:  qty,
			AskQty:  qty,
		},
	}
}

func TestEvaluateBuyPrimarySellSecondary(t *testing.T) {
	d := New(1.0, 1.0)

	// Buy on A at 100.00, sell on B at 101.50.
	snap := snapshot(99.50, 100.00, 101.50, 102.00, 500)

	sig, ok := d.Evaluate(snap, 10)
	require.True(t, ok)
	assert.Equal(t, "NSE", sig.BuyVenue)
	assert.Equal(t, "BSE", sig.SellVenue)
	assert.InDelta(t, 1.50, sig.Spread, 1e-9)
	assert.Equal(t, int64(10), sig.Quantity)
	assert.NotEmpty(t, sig.ID)
	assert.False(t, sig.DetectedAt.IsZero())
}

func TestEvaluateBuySecondarySellPrimary(t *testing.T) {
	d := New(1.0, 1.0)

	// Buy on B at 100.00, sell on A at 101.25.
	snap := snapshot(101.25, 102.00, 99.00, 100.00, 500)

	sig, ok := d.Evaluate(snap, 10)
	require.True(t, ok)
	assert.Equal(t, "BSE", sig.BuyVenue)
	assert.Equal(t, "NSE", sig.SellVenue)
	assert.InDelta(t, 1.25, sig.Spread, 1e-9)
}

func TestEvaluateTiePrefersBuyPrimary(t *testing.T) {
	d := New(1.0, 1.0)

	// Both directions yield exactly 2.00.
	snap := snapshot(102.00, 100.00, 102.00, 100.00, 500)

	sig, ok := d.Evaluate(snap, 10)
	require.True(t, ok)
	assert.Equal(t, "NSE", sig.BuyVenue)
	assert.Equal(t, "BSE", sig.SellVenue)
}

func TestEvaluateBelowThreshold(t *testing.T) {
	d := New(1.0, 1.0)

	snap := snapshot(99.90, 100.00, 100.50, 100.60, 500)

	_, ok := d.Evaluate(snap, 10)
	assert.False(t, ok)
}

func TestEvaluateUsesExecutablePricesNotLastTraded(t *testing.T) {
	d := New(1.0, 1.0)

	snap := snapshot(99.50, 100.00, 101.50, 102.00, 500)
	// Last-traded prices that would suggest a much larger spread.
	snap.A.LastPrice = 90.00
	snap.B.LastPrice = 110.00

	sig, ok := d.Evaluate(snap, 10)
	require.True(t, ok)
	assert.InDelta(t, 1.50, sig.Spread, 1e-9)
}

func TestEvaluateLiquiditySuppressesSignal(t *testing.T) {
	d := New(1.0, 1.0)

	// Direction is buy-A/sell-B; A's ask quantity cannot cover the size.
	snap := snapshot(99.50, 100.00, 101.50, 102.00, 500)
	snap.A.AskQty = 5

	_, ok := d.Evaluate(snap, 10)
	assert.False(t, ok, "insufficient depth on the chosen side must suppress, not downsize")
}

func TestEvaluateNoFallbackToWorseDirection(t *testing.T) {
	d := New(1.0, 1.0)

	// Buy-A yields 2.00, buy-B yields 1.50; only buy-A lacks liquidity.
	snap := domain.QuoteSnapshot{
		Symbol: "RELIANCE",
		A: domain.VenueQuote{Venue: "NSE", BestBid: 101.50, BestAsk: 100.00, BidQty: 500, AskQty: 5},
		B: domain.VenueQuote{Venue: "BSE", BestBid: 102.00, BestAsk: 100.00, BidQty: 500, AskQty: 500},
	}

	_, ok := d.Evaluate(snap, 10)
	assert.False(t, ok, "the inferior direction must not be taken when the best one lacks depth")
}

func TestThresholdIsMaxOfInstanceAndGlobal(t *testing.T) {
	assert.Equal(t, 2.5, New(1.0, 2.5).Threshold())
	assert.Equal(t, 3.0, New(3.0, 2.5).Threshold())

	d := New(1.0, 2.5)
	snap := snapshot(99.50, 100.00, 102.00, 102.50, 500) // spread 2.00

	_, ok := d.Evaluate(snap, 10)
	assert.False(t, ok)
}

func TestBestSpread(t *testing.T) {
	snap := snapshot(99.50, 100.00, 101.50, 102.00, 500)
	assert.InDelta(t, 1.50, BestSpread(snap), 1e-9)

	// Inverted market: both directions negative, the larger one is reported.
	snap = snapshot(99.00, 100.00, 99.20, 100.20, 500)
	assert.InDelta(t, -0.80, BestSpread(snap), 1e-9)
}
