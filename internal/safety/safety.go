// Package safety implements the admission gate, circuit breaker, and
// open-position tracking that protect the executor.
package safety

import (
	"log/slog"
	"sync"
	"time"

	"github.com/arbx-trading/arbx/internal/domain"
)

// historyCapacity bounds the rolling trade history. Oldest records are
// evicted once the ring is full.
const historyCapacity = 1000

// rateWindow is the trailing interval for the trades-per-minute gate.
const rateWindow = 60 * time.Second

// Limits holds the tunable risk parameters.
type Limits struct {
	MaxTradesPerMinute int
	MaxOpenExposure    int     // distinct symbols with an open position
	MaxFailedFills     int     // consecutive failures before the breaker trips
	MaxSlippagePerLeg  float64 // consumed by the executor's reconciliation
}

// Manager gates trade admission and tracks in-flight positions. All checks
// in CanTrade are read-only; state mutates only through RegisterOpen,
// RegisterClose, and RecordTrade, which the executor drives.
type Manager struct {
	mu          sync.Mutex
	history     [historyCapacity]domain.TradeRecord
	histHead    int // next write slot
	histLen     int
	openSymbols map[string]int
	failedFills int

	limits Limits
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager with the given limits.
func NewManager(limits Limits, logger *slog.Logger) *Manager {
	return &Manager{
		openSymbols: make(map[string]int),
		limits:      limits,
		logger:      logger.With(slog.String("component", "safety")),
		now:         time.Now,
	}
}

// CanTrade reports whether a new pair may be dispatched for the symbol. It
// denies when the sliding-window trade rate is exhausted, the symbol already
// has an open position, the open-exposure limit is reached, or the circuit
// breaker has tripped. CanTrade never mutates state, so denial needs no
// rollback.
func (m *Manager) CanTrade(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	recent := m.recentTradesLocked(now)
	if recent >= m.limits.MaxTradesPerMinute {
		m.logger.Warn("trade rate limit hit", slog.Int("trades_per_minute", recent))
		return false
	}

	// No pyramiding: one pair per symbol at a time.
	if m.openSymbols[symbol] > 0 {
		m.logger.Warn("symbol already has an open trade", slog.String("symbol", symbol))
		return false
	}

	if len(m.openSymbols) >= m.limits.MaxOpenExposure {
		m.logger.Warn("open exposure limit reached", slog.Int("open_symbols", len(m.openSymbols)))
		return false
	}

	if m.failedFills >= m.limits.MaxFailedFills {
		m.logger.Error("too many consecutive failed fills, blocking new trades",
			slog.Int("failed_fills", m.failedFills))
		return false
	}

	return true
}

// RegisterOpen marks a position in flight for the symbol. Every call must be
// matched by exactly one RegisterClose, regardless of outcome.
func (m *Manager) RegisterOpen(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openSymbols[symbol]++
}

// RegisterClose releases one in-flight position for the symbol, removing the
// entry once the count reaches zero.
func (m *Manager) RegisterClose(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.openSymbols[symbol]; ok {
		if n <= 1 {
			delete(m.openSymbols, symbol)
		} else {
			m.openSymbols[symbol] = n - 1
		}
	}
}

// RecordTrade appends a record to the rolling history and updates the
// circuit breaker: any success resets the consecutive-failure counter, any
// failure increments it.
func (m *Manager) RecordTrade(symbol string, spread float64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history[m.histHead] = domain.TradeRecord{
		Timestamp: m.now(),
		Symbol:    symbol,
		Spread:    spread,
		Success:   success,
	}
	m.histHead = (m.histHead + 1) % historyCapacity
	if m.histLen < historyCapacity {
		m.histLen++
	}

	if success {
		m.failedFills = 0
	} else {
		m.failedFills++
	}
}

// OpenPositions returns the number of distinct symbols with an in-flight
// position.
func (m *Manager) OpenPositions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.openSymbols)
}

// ConsecutiveFailures returns the current circuit-breaker counter.
func (m *Manager) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failedFills
}

// recentTradesLocked counts history records inside the trailing rate window.
// The window slides with the clock: no bucketing, no manual reset.
func (m *Manager) recentTradesLocked(now time.Time) int {
	count := 0
	for i := 0; i < m.histLen; i++ {
		idx := (m.histHead - 1 - i + historyCapacity) % historyCapacity
		if now.Sub(m.history[idx].Timestamp) <= rateWindow {
			count++
		}
	}
	return count
}
