package domain

import "time"

// TradeRecord is one entry in the bounded rolling trade history used by the
// safety manager's sliding-window rate limit and circuit breaker.
type TradeRecord struct {
	Timestamp time.Time
	Symbol    string
	Spread    float64
	Success   bool
}
