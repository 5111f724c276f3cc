package domain

import "context"

// Feed produces normalized ticks. NextTick blocks until a tick is available
// or the context is cancelled. Feed lifecycle (connect, reconnect, stop) is
// owned by the host process, not the core.
type Feed interface {
	NextTick(ctx context.Context) (Tick, error)
}

// Instrument is a venue-tradable identity for a (symbol, venue) pair.
type Instrument struct {
	Symbol        string
	Venue         string
	TradingSymbol string
	Token         string
}

// InstrumentResolver maps (symbol, venue) to the venue's tradable identity.
// Resolution failures are validation errors: the leg fails immediately with
// no network call.
type InstrumentResolver interface {
	Resolve(symbol, venue string) (Instrument, error)
}

// SessionProvider owns venue credentials. Ensure returns nil when a valid
// session exists, authenticating or refreshing as needed. There is no
// ambient global session; the provider is injected wherever it is needed.
type SessionProvider interface {
	Ensure(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// VenueGateway is the execution boundary to one or more venues. Every
// response is normalized into OrderAck before it reaches the executor.
type VenueGateway interface {
	PlaceOrder(ctx context.Context, inst Instrument, leg OrderLeg) (OrderAck, error)
	OrderStatus(ctx context.Context, orderID string) (OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// TelemetryHook is invoked with each built snapshot for observability.
// Implementations are best-effort: errors and panics are swallowed by the
// caller and never affect tick processing.
type TelemetryHook func(ctx context.Context, snap QuoteSnapshot)

// ExecuteFunc is the host-supplied execution callback invoked by the
// decision engine when a signal fires.
type ExecuteFunc func(ctx context.Context, sig SpreadSignal, snap QuoteSnapshot) (ExecutionSummary, error)
