package domain

// Side indicates whether a leg buys or sells.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind is the order pricing style.
type OrderKind string

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

// TimeInForce is the order validity policy.
type TimeInForce string

const (
	// TIFImmediateOrCancel cancels any unfilled remainder instead of
	// letting it rest on the book. Arbitrage legs always use IOC.
	TIFImmediateOrCancel TimeInForce = "IOC"
	TIFDay               TimeInForce = "DAY"
)

// ProductType is the venue product classification for the order.
type ProductType string

const (
	ProductIntraday ProductType = "INTRADAY"
	ProductDelivery ProductType = "DELIVERY"
)

// OrderLeg is one side of an arbitrage pair, executed on one venue. A leg is
// terminal once the executor resolves its fill state.
type OrderLeg struct {
	Venue        string
	Symbol       string
	Side         Side
	Quantity     int64
	Kind         OrderKind
	TIF          TimeInForce
	Product      ProductType
	LimitPrice   float64 // only for OrderKindLimit
	TriggerPrice float64 // only for stop variants, zero otherwise
}

// OrderStatus is the venue-reported lifecycle state of an order, normalized
// at the gateway boundary.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusOpen      OrderStatus = "OPEN"
	StatusComplete  OrderStatus = "COMPLETE"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether the status can no longer change at the venue.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// OrderAck is the single normalized result shape for every gateway
// operation: submit, status poll, and cancel confirmation. Raw venue
// responses never cross this boundary.
type OrderAck struct {
	OrderID   string
	Status    OrderStatus
	FilledQty int64
	FillPrice float64
}

// LegState tracks a leg through the executor's state machine.
type LegState string

const (
	LegSubmitted       LegState = "SUBMITTED"
	LegPolling         LegState = "POLLING"
	LegFilled          LegState = "FILLED"
	LegPartial         LegState = "PARTIAL"
	LegRejected        LegState = "REJECTED"
	LegCancelled       LegState = "CANCELLED"
	LegSquaredOff      LegState = "SQUARED_OFF"
	LegSquareOffFailed LegState = "SQUARE_OFF_FAILED"
)

// LegResult is the executor's terminal record for one leg.
type LegResult struct {
	Leg          OrderLeg
	OrderID      string
	State        LegState
	FilledQty    int64
	AvgFillPrice float64
	Err          error
}

// Filled reports whether the leg filled completely.
func (r LegResult) Filled() bool {
	return r.State == LegFilled || (r.FilledQty > 0 && r.FilledQty == r.Leg.Quantity)
}

// AnyFill reports whether the leg has any executed quantity. Legs with any
// fill require a sized square-off on the failure path.
func (r LegResult) AnyFill() bool {
	return r.FilledQty > 0
}
