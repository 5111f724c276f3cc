package postgres

import (
	"context"
	"fmt"

	"github.com/arbx-trading/arbx/internal/domain"
)

// LoadInstruments reads the full instrument master. The result seeds the
// in-memory resolver so order-path lookups never hit the database.
func (c *Client) LoadInstruments(ctx context.Context) ([]domain.Instrument, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT symbol, venue, trading_symbol, token FROM instruments`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load instruments: %w", err)
	}
	defer rows.Close()

	var out []domain.Instrument
	for rows.Next() {
		var inst domain.Instrument
		if err := rows.Scan(&inst.Symbol, &inst.Venue, &inst.TradingSymbol, &inst.Token); err != nil {
			return nil, fmt.Errorf("postgres: scan instrument: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate instruments: %w", err)
	}
	return out, nil
}

// UpsertInstruments writes instrument master entries, replacing existing
// rows for the same (symbol, venue).
func (c *Client) UpsertInstruments(ctx context.Context, instruments []domain.Instrument) error {
	for _, inst := range instruments {
		_, err := c.pool.Exec(ctx, `
			INSERT INTO instruments (symbol, venue, trading_symbol, token)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (symbol, venue) DO UPDATE
			SET trading_symbol = EXCLUDED.trading_symbol, token = EXCLUDED.token`,
			inst.Symbol, inst.Venue, inst.TradingSymbol, inst.Token,
		)
		if err != nil {
			return fmt.Errorf("postgres: upsert instrument %s/%s: %w", inst.Symbol, inst.Venue, err)
		}
	}
	return nil
}
