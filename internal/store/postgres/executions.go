package postgres

import (
	"context"
	"fmt"

	"github.com/arbx-trading/arbx/internal/domain"
)

// InsertExecution journals one completed pair execution.
func (c *Client) InsertExecution(ctx context.Context, sum domain.ExecutionSummary) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO executions (
			id, symbol, spread, buy_venue, sell_venue, quantity,
			outcome, reason, buy_state, sell_state, buy_fill, sell_fill,
			realized_pnl, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		sum.Signal.ID,
		sum.Signal.Symbol,
		sum.Signal.Spread,
		sum.Signal.BuyVenue,
		sum.Signal.SellVenue,
		sum.Signal.Quantity,
		string(sum.Outcome),
		sum.Reason,
		string(sum.Buy.State),
		string(sum.Sell.State),
		sum.Buy.AvgFillPrice,
		sum.Sell.AvgFillPrice,
		sum.RealizedPnL,
		sum.Signal.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", sum.Signal.ID, err)
	}
	return nil
}
