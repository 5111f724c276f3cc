// Package instrument maps (symbol, venue) pairs to tradable venue
// instruments. Resolution is an in-memory lookup so the order path never
// waits on the network; the table is built once at startup, either from
// static configuration or from the instrument master in Postgres.
package instrument

import (
	"fmt"
	"strings"
	"sync"

	"github.com/arbx-trading/arbx/internal/domain"
)

// StaticResolver resolves instruments from a fixed in-memory table.
type StaticResolver struct {
	mu    sync.RWMutex
	table map[string]domain.Instrument
}

var _ domain.InstrumentResolver = (*StaticResolver)(nil)

// NewStaticResolver builds a resolver from a list of instruments.
func NewStaticResolver(instruments []domain.Instrument) *StaticResolver {
	r := &StaticResolver{table: make(map[string]domain.Instrument, len(instruments))}
	for _, inst := range instruments {
		r.table[key(inst.Symbol, inst.Venue)] = inst
	}
	return r
}

// Resolve returns the instrument for a (symbol, venue) pair. Unknown pairs
// fail immediately with domain.ErrNoInstrument.
func (r *StaticResolver) Resolve(symbol, venue string) (domain.Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.table[key(symbol, venue)]
	if !ok {
		return domain.Instrument{}, fmt.Errorf("instrument: %s on %s: %w", symbol, venue, domain.ErrNoInstrument)
	}
	return inst, nil
}

// Replace swaps the entire table, for refreshes from the instrument master.
func (r *StaticResolver) Replace(instruments []domain.Instrument) {
	table := make(map[string]domain.Instrument, len(instruments))
	for _, inst := range instruments {
		table[key(inst.Symbol, inst.Venue)] = inst
	}

	r.mu.Lock()
	r.table = table
	r.mu.Unlock()
}

// Len reports the number of resolvable instruments.
func (r *StaticResolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table)
}

func key(symbol, venue string) string {
	return strings.ToUpper(symbol) + "|" + strings.ToUpper(venue)
}
