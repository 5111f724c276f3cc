package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbx-trading/arbx/internal/domain"
	"github.com/arbx-trading/arbx/internal/safety"
)

type fakeSession struct {
	err error
}

func (s *fakeSession) Ensure(ctx context.Context) error  { return s.err }
func (s *fakeSession) Refresh(ctx context.Context) error { return nil }

type fakeResolver struct {
	missingVenue string
}

func (r *fakeResolver) Resolve(symbol, venue string) (domain.Instrument, error) {
	if venue == r.missingVenue {
		return domain.Instrument{}, domain.ErrNoInstrument
	}
	return domain.Instrument{
		Symbol:        symbol,
		Venue:         venue,
		TradingSymbol: symbol + "-EQ",
		Token:         "t-" + venue,
	}, nil
}

// fakeGateway assigns order ids on placement and answers status polls with
// the terminal ack produced by the fill hook.
type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	placed    []domain.OrderLeg
	cancelled []string
	statuses  map[string]domain.OrderAck

	// fill maps a placed leg to its terminal ack. Defaults to a full fill.
	fill    func(leg domain.OrderLeg) domain.OrderAck
	onPlace func(leg domain.OrderLeg)
}

func fullFill(leg domain.OrderLeg) domain.OrderAck {
	price := leg.LimitPrice
	if leg.Kind == domain.OrderKindMarket {
		price = 100.0
	}
	return domain.OrderAck{
		Status:    domain.StatusComplete,
		FilledQty: leg.Quantity,
		FillPrice: price,
	}
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, inst domain.Instrument, leg domain.OrderLeg) (domain.OrderAck, error) {
	// The hook runs outside the lock so it may block without serializing
	// concurrent placements.
	if g.onPlace != nil {
		g.onPlace(leg)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("ord-%d", g.seq)
	g.placed = append(g.placed, leg)

	fill := g.fill
	if fill == nil {
		fill = fullFill
	}
	final := fill(leg)
	final.OrderID = id
	if g.statuses == nil {
		g.statuses = make(map[string]domain.OrderAck)
	}
	g.statuses[id] = final

	return domain.OrderAck{OrderID: id, Status: domain.StatusPending}, nil
}

func (g *fakeGateway) OrderStatus(ctx context.Context, orderID string) (domain.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ack, ok := g.statuses[orderID]
	if !ok {
		return domain.OrderAck{}, errors.New("unknown order")
	}
	return ack, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, orderID)
	return nil
}

func (g *fakeGateway) placedLegs() []domain.OrderLeg {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.OrderLeg, len(g.placed))
	copy(out, g.placed)
	return out
}

func testSignal() (domain.SpreadSignal, domain.QuoteSnapshot) {
	sig := domain.SpreadSignal{
		ID:         "sig-1",
		Symbol:     "RELIANCE",
		Spread:     1.50,
		BuyVenue:   "NSE",
		SellVenue:  "BSE",
		Quantity:   10,
		DetectedAt: time.Now().UTC(),
	}
	snap := domain.QuoteSnapshot{
		Symbol: "RELIANCE",
		A:      domain.VenueQuote{Venue: "NSE", BestBid: 99.50, BestAsk: 100.00, BidQty: 500, AskQty: 500},
		B:      domain.VenueQuote{Venue: "BSE", BestBid: 101.50, BestAsk: 102.00, BidQty: 500, AskQty: 500},
	}
	return sig, snap
}

func relaxedLimits() safety.Limits {
	return safety.Limits{
		MaxTradesPerMinute: 100,
		MaxOpenExposure:    10,
		MaxFailedFills:     100,
		MaxSlippagePerLeg:  0.25,
	}
}

func newTestExecutor(t *testing.T, gw *fakeGateway, limits safety.Limits, session domain.SessionProvider, resolver domain.InstrumentResolver) (*Executor, *safety.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sm := safety.NewManager(limits, logger)

	pool := NewPool(4)
	t.Cleanup(pool.Close)

	if session == nil {
		session = &fakeSession{}
	}
	if resolver == nil {
		resolver = &fakeResolver{}
	}

	exec := New(sm, gw, session, resolver, pool, Config{
		UseLimitOrders:    true,
		BuyBuffer:         0.10,
		SellBuffer:        0.10,
		PollInterval:      time.Millisecond,
		PollTimeout:       50 * time.Millisecond,
		MaxSlippagePerLeg: limits.MaxSlippagePerLeg,
	}, logger)
	return exec, sm
}

func TestExecutePairBlocked(t *testing.T) {
	gw := &fakeGateway{}
	limits := relaxedLimits()
	limits.MaxTradesPerMinute = 0
	exec, sm := newTestExecutor(t, gw, limits, nil, nil)

	sig, snap := testSignal()
	summary, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err, "a blocked pair is an outcome, not an error")

	assert.Equal(t, domain.OutcomeBlocked, summary.Outcome)
	assert.Equal(t, "risk limits", summary.Reason)
	assert.Empty(t, gw.placedLegs(), "no venue interaction on a blocked pair")
	assert.Equal(t, 0, sm.OpenPositions())
}

func TestExecutePairSuccess(t *testing.T) {
	gw := &fakeGateway{}
	exec, sm := newTestExecutor(t, gw, relaxedLimits(), nil, nil)

	sig, snap := testSignal()
	summary, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeSuccess, summary.Outcome)
	assert.Equal(t, domain.LegFilled, summary.Buy.State)
	assert.Equal(t, domain.LegFilled, summary.Sell.State)

	// Buy at ask+buffer, sell at bid-buffer, both legs filled at limit.
	assert.InDelta(t, (101.40-100.10)*10, summary.RealizedPnL, 1e-9)
	assert.Equal(t, 0, sm.OpenPositions(), "open marker released after completion")
	assert.Equal(t, 0, sm.ConsecutiveFailures())

	legs := gw.placedLegs()
	require.Len(t, legs, 2)
	for _, leg := range legs {
		assert.Equal(t, domain.TIFImmediateOrCancel, leg.TIF)
		assert.Equal(t, domain.OrderKindLimit, leg.Kind)
		assert.Equal(t, int64(10), leg.Quantity)
	}
}

func TestExecutePairLegPricing(t *testing.T) {
	gw := &fakeGateway{}
	exec, _ := newTestExecutor(t, gw, relaxedLimits(), nil, nil)

	sig, snap := testSignal()
	_, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err)

	var buy, sell domain.OrderLeg
	for _, leg := range gw.placedLegs() {
		if leg.Side == domain.SideBuy {
			buy = leg
		} else {
			sell = leg
		}
	}
	assert.Equal(t, "NSE", buy.Venue)
	assert.InDelta(t, 100.10, buy.LimitPrice, 1e-9, "buy bids above the ask")
	assert.Equal(t, "BSE", sell.Venue)
	assert.InDelta(t, 101.40, sell.LimitPrice, 1e-9, "sell offers below the bid")
}

func TestExecutePairOneSidedFillTriggersFailsafe(t *testing.T) {
	gw := &fakeGateway{}
	gw.fill = func(leg domain.OrderLeg) domain.OrderAck {
		switch {
		case leg.Side == domain.SideSell && leg.Venue == "BSE":
			// Original sell leg: zero fill, venue cancelled the IOC.
			return domain.OrderAck{Status: domain.StatusCancelled}
		default:
			return fullFill(leg)
		}
	}
	exec, sm := newTestExecutor(t, gw, relaxedLimits(), nil, nil)

	sig, snap := testSignal()
	summary, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailure, summary.Outcome)
	assert.Equal(t, "one-sided fill", summary.Reason)
	assert.Equal(t, domain.LegSquaredOff, summary.Buy.State)
	assert.Equal(t, domain.LegCancelled, summary.Sell.State)

	legs := gw.placedLegs()
	require.Len(t, legs, 3, "two legs plus one square-off")
	closeLeg := legs[2]
	assert.Equal(t, domain.SideSell, closeLeg.Side, "square-off opposes the filled buy")
	assert.Equal(t, "NSE", closeLeg.Venue)
	assert.Equal(t, int64(10), closeLeg.Quantity)
	assert.Equal(t, domain.OrderKindMarket, closeLeg.Kind)
	assert.Equal(t, domain.TIFImmediateOrCancel, closeLeg.TIF)

	assert.Equal(t, 0, sm.OpenPositions())
	assert.Equal(t, 1, sm.ConsecutiveFailures(), "failed pair recorded exactly once")
}

func TestExecutePairFailsafeSizedToPartialFill(t *testing.T) {
	gw := &fakeGateway{}
	gw.fill = func(leg domain.OrderLeg) domain.OrderAck {
		if leg.Side == domain.SideBuy && leg.Kind == domain.OrderKindLimit {
			// Partial: 4 of 10.
			return domain.OrderAck{Status: domain.StatusCancelled, FilledQty: 4, FillPrice: leg.LimitPrice}
		}
		if leg.Side == domain.SideSell && leg.Kind == domain.OrderKindLimit {
			return domain.OrderAck{Status: domain.StatusCancelled}
		}
		return fullFill(leg)
	}
	exec, _ := newTestExecutor(t, gw, relaxedLimits(), nil, nil)

	sig, snap := testSignal()
	summary, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailure, summary.Outcome)
	assert.Equal(t, domain.LegSquaredOff, summary.Buy.State)

	legs := gw.placedLegs()
	require.Len(t, legs, 3)
	assert.Equal(t, int64(4), legs[2].Quantity, "square-off covers the filled quantity only")
}

func TestExecutePairSquareOffFailure(t *testing.T) {
	gw := &fakeGateway{}
	gw.fill = func(leg domain.OrderLeg) domain.OrderAck {
		if leg.Kind == domain.OrderKindMarket {
			// Square-off attempt gets nothing done.
			return domain.OrderAck{Status: domain.StatusRejected}
		}
		if leg.Side == domain.SideSell {
			return domain.OrderAck{Status: domain.StatusCancelled}
		}
		return fullFill(leg)
	}
	exec, _ := newTestExecutor(t, gw, relaxedLimits(), nil, nil)

	sig, snap := testSignal()
	summary, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailure, summary.Outcome)
	assert.Equal(t, domain.LegSquareOffFailed, summary.Buy.State)
}

func TestExecutePairSlippageBreach(t *testing.T) {
	gw := &fakeGateway{}
	gw.fill = func(leg domain.OrderLeg) domain.OrderAck {
		if leg.Side == domain.SideBuy && leg.Kind == domain.OrderKindLimit {
			// Fill far from the submitted limit.
			return domain.OrderAck{Status: domain.StatusComplete, FilledQty: leg.Quantity, FillPrice: leg.LimitPrice + 1.00}
		}
		return fullFill(leg)
	}
	exec, _ := newTestExecutor(t, gw, relaxedLimits(), nil, nil)

	sig, snap := testSignal()
	summary, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailure, summary.Outcome)
	assert.Equal(t, "slippage breach", summary.Reason)
	// Both legs filled, so both are squared off.
	assert.Equal(t, domain.LegSquaredOff, summary.Buy.State)
	assert.Equal(t, domain.LegSquaredOff, summary.Sell.State)
	assert.Len(t, gw.placedLegs(), 4)
}

func TestExecutePairSessionUnavailable(t *testing.T) {
	gw := &fakeGateway{}
	session := &fakeSession{err: domain.ErrSessionUnavailable}
	exec, sm := newTestExecutor(t, gw, relaxedLimits(), session, nil)

	sig, snap := testSignal()
	summary, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailure, summary.Outcome)
	assert.Equal(t, "both legs unfilled", summary.Reason)
	assert.Equal(t, domain.LegRejected, summary.Buy.State)
	assert.Equal(t, domain.LegRejected, summary.Sell.State)
	assert.ErrorIs(t, summary.Buy.Err, domain.ErrSessionUnavailable)
	assert.Empty(t, gw.placedLegs())
	assert.Equal(t, 0, sm.OpenPositions())
	assert.Equal(t, 1, sm.ConsecutiveFailures())
}

func TestExecutePairUnresolvedInstrumentFailsFast(t *testing.T) {
	gw := &fakeGateway{}
	resolver := &fakeResolver{missingVenue: "BSE"}
	exec, _ := newTestExecutor(t, gw, relaxedLimits(), nil, resolver)

	sig, snap := testSignal()
	summary, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailure, summary.Outcome)
	assert.Equal(t, domain.LegRejected, summary.Sell.State)
	assert.ErrorIs(t, summary.Sell.Err, domain.ErrNoInstrument)

	// The buy leg proceeded, filled, and was squared off.
	assert.Equal(t, domain.LegSquaredOff, summary.Buy.State)
}

func TestExecutePairHoldsOpenMarkerDuringLegs(t *testing.T) {
	gw := &fakeGateway{}
	exec, sm := newTestExecutor(t, gw, relaxedLimits(), nil, nil)

	var hookMu sync.Mutex
	var openDuringPlacement []int
	gw.onPlace = func(domain.OrderLeg) {
		hookMu.Lock()
		defer hookMu.Unlock()
		openDuringPlacement = append(openDuringPlacement, sm.OpenPositions())
	}

	sig, snap := testSignal()
	_, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err)

	require.Len(t, openDuringPlacement, 2)
	for _, n := range openDuringPlacement {
		assert.Equal(t, 1, n, "symbol registered open before any dispatch")
	}
	assert.Equal(t, 0, sm.OpenPositions())
}

// TestExecutePairDispatchesLegsConcurrently holds every placement at a
// barrier until both legs have entered the gateway, proving the legs run on
// separate workers rather than back to back.
func TestExecutePairDispatchesLegsConcurrently(t *testing.T) {
	gw := &fakeGateway{}
	exec, _ := newTestExecutor(t, gw, relaxedLimits(), nil, nil)

	entered := make(chan domain.Side, 2)
	release := make(chan struct{})
	var releaseOnce sync.Once
	releaseLegs := func() { releaseOnce.Do(func() { close(release) }) }
	defer releaseLegs()

	gw.onPlace = func(leg domain.OrderLeg) {
		entered <- leg.Side
		<-release
	}

	sig, snap := testSignal()
	summaryCh := make(chan domain.ExecutionSummary, 1)
	go func() {
		summary, _ := exec.ExecutePair(context.Background(), sig, snap)
		summaryCh <- summary
	}()

	sides := make(map[domain.Side]bool, 2)
	for i := 0; i < 2; i++ {
		select {
		case side := <-entered:
			sides[side] = true
		case <-time.After(2 * time.Second):
			t.Fatal("second leg never entered the gateway while the first was blocked")
		}
	}
	assert.True(t, sides[domain.SideBuy])
	assert.True(t, sides[domain.SideSell])

	releaseLegs()
	summary := <-summaryCh
	assert.Equal(t, domain.OutcomeSuccess, summary.Outcome)
}

func TestExecutePairRecordsTradeExactlyOnce(t *testing.T) {
	gw := &fakeGateway{}
	limits := relaxedLimits()
	limits.MaxTradesPerMinute = 2
	exec, _ := newTestExecutor(t, gw, limits, nil, nil)

	sig, snap := testSignal()
	for i := 0; i < 2; i++ {
		summary, err := exec.ExecutePair(context.Background(), sig, snap)
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeSuccess, summary.Outcome)
	}

	summary, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBlocked, summary.Outcome, "exactly two trades recorded against the limit")
}

func TestPollTimeoutCancelsStaleOrder(t *testing.T) {
	gw := &fakeGateway{}
	gw.fill = func(leg domain.OrderLeg) domain.OrderAck {
		if leg.Side == domain.SideBuy && leg.Kind == domain.OrderKindLimit {
			// Never goes terminal; the executor must cancel it.
			return domain.OrderAck{Status: domain.StatusOpen}
		}
		return fullFill(leg)
	}
	exec, _ := newTestExecutor(t, gw, relaxedLimits(), nil, nil)

	sig, snap := testSignal()
	summary, err := exec.ExecutePair(context.Background(), sig, snap)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailure, summary.Outcome)
	assert.Equal(t, domain.LegCancelled, summary.Buy.State)
	assert.Zero(t, summary.Buy.FilledQty)

	gw.mu.Lock()
	cancelled := len(gw.cancelled)
	gw.mu.Unlock()
	assert.Equal(t, 1, cancelled, "explicit cancel after the grace recheck")
}
