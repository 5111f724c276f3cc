package domain

import "time"

// SpreadSignal is emitted by the spread detector when a profitable,
// liquidity-backed arbitrage direction exists. It is immutable and consumed
// once by the executor.
type SpreadSignal struct {
	ID         string // UUID
	Symbol     string
	Spread     float64 // executable profit per unit, sell bid minus buy ask
	BuyVenue   string
	SellVenue  string
	Quantity   int64
	DetectedAt time.Time
}

// PairOutcome classifies the terminal state of an executed leg pair. Exactly
// one outcome is produced per execution attempt.
type PairOutcome string

const (
	OutcomeBlocked PairOutcome = "blocked"
	OutcomeSuccess PairOutcome = "success"
	OutcomeFailure PairOutcome = "failure"
)

// ExecutionSummary is returned to the host callback after a pair attempt. The
// core does not consume it; it exists for host-side reporting.
type ExecutionSummary struct {
	Signal      SpreadSignal
	Outcome     PairOutcome
	Reason      string
	Buy         LegResult
	Sell        LegResult
	RealizedPnL float64
}
