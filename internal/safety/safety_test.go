package safety

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(limits Limits) (*Manager, *time.Time) {
	m := NewManager(limits, testLogger())
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestRateLimitSlidingWindow(t *testing.T) {
	m, now := newTestManager(Limits{
		MaxTradesPerMinute: 4,
		MaxOpenExposure:    10,
		MaxFailedFills:     100,
	})

	for i := 0; i < 4; i++ {
		require.True(t, m.CanTrade("SYM"))
		m.RecordTrade("SYM", 1.5, true)
		*now = now.Add(5 * time.Second)
	}

	// Four trades inside the trailing minute: blocked.
	assert.False(t, m.CanTrade("SYM"))

	// The window slides rather than resetting on a minute boundary. 45s
	// after the last trade, the first trade is 60s old and falls out.
	*now = now.Add(45 * time.Second)
	assert.True(t, m.CanTrade("SYM"))
}

func TestRateLimitCountsFailures(t *testing.T) {
	m, _ := newTestManager(Limits{
		MaxTradesPerMinute: 2,
		MaxOpenExposure:    10,
		MaxFailedFills:     100,
	})

	m.RecordTrade("SYM", 1.0, false)
	m.RecordTrade("SYM", 1.0, false)

	assert.False(t, m.CanTrade("SYM"), "failed attempts count against the rate limit")
}

func TestNoPyramiding(t *testing.T) {
	m, _ := newTestManager(Limits{
		MaxTradesPerMinute: 100,
		MaxOpenExposure:    10,
		MaxFailedFills:     100,
	})

	m.RegisterOpen("RELIANCE")
	assert.False(t, m.CanTrade("RELIANCE"))
	assert.True(t, m.CanTrade("TCS"))

	m.RegisterClose("RELIANCE")
	assert.True(t, m.CanTrade("RELIANCE"))
}

func TestOpenExposureLimit(t *testing.T) {
	m, _ := newTestManager(Limits{
		MaxTradesPerMinute: 100,
		MaxOpenExposure:    1,
		MaxFailedFills:     100,
	})

	m.RegisterOpen("RELIANCE")
	assert.False(t, m.CanTrade("TCS"), "distinct-symbol exposure limit reached")

	m.RegisterClose("RELIANCE")
	assert.True(t, m.CanTrade("TCS"))
}

func TestRegisterCloseIsRefCounted(t *testing.T) {
	m, _ := newTestManager(Limits{
		MaxTradesPerMinute: 100,
		MaxOpenExposure:    10,
		MaxFailedFills:     100,
	})

	m.RegisterOpen("SYM")
	m.RegisterOpen("SYM")
	assert.Equal(t, 1, m.OpenPositions())

	m.RegisterClose("SYM")
	assert.Equal(t, 1, m.OpenPositions())

	m.RegisterClose("SYM")
	assert.Equal(t, 0, m.OpenPositions())

	// Unmatched close is a no-op.
	m.RegisterClose("SYM")
	assert.Equal(t, 0, m.OpenPositions())
}

func TestCircuitBreaker(t *testing.T) {
	m, _ := newTestManager(Limits{
		MaxTradesPerMinute: 100,
		MaxOpenExposure:    10,
		MaxFailedFills:     2,
	})

	m.RecordTrade("SYM", 1.0, false)
	assert.True(t, m.CanTrade("SYM"))

	m.RecordTrade("SYM", 1.0, false)
	assert.False(t, m.CanTrade("SYM"))
	assert.Equal(t, 2, m.ConsecutiveFailures())
}

func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	m, _ := newTestManager(Limits{
		MaxTradesPerMinute: 100,
		MaxOpenExposure:    10,
		MaxFailedFills:     2,
	})

	m.RecordTrade("SYM", 1.0, false)
	m.RecordTrade("SYM", 1.0, true)
	assert.Equal(t, 0, m.ConsecutiveFailures())

	m.RecordTrade("SYM", 1.0, false)
	assert.True(t, m.CanTrade("SYM"), "counter tracks consecutive failures only")
}

func TestHistoryRingEviction(t *testing.T) {
	m, now := newTestManager(Limits{
		MaxTradesPerMinute: 5000,
		MaxOpenExposure:    10,
		MaxFailedFills:     100000,
	})

	// Overfill the ring; the window count must stay bounded by capacity
	// and only see records that are still inside the trailing minute.
	for i := 0; i < historyCapacity+50; i++ {
		m.RecordTrade("SYM", 1.0, false)
	}
	assert.Equal(t, historyCapacity, m.histLen)
	assert.Equal(t, historyCapacity, m.recentTradesLocked(*now))

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, m.recentTradesLocked(*now))
}

func TestCanTradeDoesNotMutate(t *testing.T) {
	m, _ := newTestManager(Limits{
		MaxTradesPerMinute: 1,
		MaxOpenExposure:    1,
		MaxFailedFills:     1,
	})

	for i := 0; i < 5; i++ {
		m.CanTrade("SYM")
	}
	assert.Equal(t, 0, m.OpenPositions())
	assert.Equal(t, 0, m.ConsecutiveFailures())
	assert.Equal(t, 0, m.histLen)
}
