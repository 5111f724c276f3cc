package domain

import "time"

// DepthLevel is a single price+quantity entry on one side of the book.
type DepthLevel struct {
	Price    float64
	Quantity int64
}

// Depth holds the top levels of both sides of a venue's book.
type Depth struct {
	Buy  []DepthLevel
	Sell []DepthLevel
}

// Tick is a normalized market-data update for one (symbol, venue). Each new
// tick replaces the previous one for its key; ticks are never stored beyond
// the latest.
type Tick struct {
	Symbol    string
	Venue     string
	LastPrice float64
	BestBid   float64
	BestAsk   float64
	BidQty    int64
	AskQty    int64
	Depth     Depth
	Timestamp time.Time
}

// VenueQuote is the top-of-book view of one venue inside a paired snapshot.
type VenueQuote struct {
	Venue     string
	LastPrice float64
	BestBid   float64
	BestAsk   float64
	BidQty    int64
	AskQty    int64
}

// QuoteSnapshot pairs the latest quotes from both venues for one symbol. It
// is built on demand and only when both venues have produced at least one
// tick. A is always the configured primary venue, B the secondary one.
type QuoteSnapshot struct {
	Symbol string
	A      VenueQuote
	B      VenueQuote
}

// QuoteFromTick extracts the top-of-book fields from a tick.
func QuoteFromTick(t Tick) VenueQuote {
	return VenueQuote{
		Venue:     t.Venue,
		LastPrice: t.LastPrice,
		BestBid:   t.BestBid,
		BestAsk:   t.BestAsk,
		BidQty:    t.BidQty,
		AskQty:    t.AskQty,
	}
}
