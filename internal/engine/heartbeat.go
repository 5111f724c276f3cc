package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbx-trading/arbx/internal/detector"
)

// heartbeatLoop periodically scans every watched symbol's current snapshot
// and logs the single largest executable spread, or an idle message when no
// symbol has quotes from both venues yet. It runs independently of the
// consumer loop and exits on cancellation.
func (e *Engine) heartbeatLoop(ctx context.Context) error {
	log := e.logger.With(slog.String("component", "heartbeat"))
	log.Info("heartbeat started", slog.Duration("interval", e.cfg.HeartbeatInterval))

	e.beat(ctx, log)
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("heartbeat cancelled")
			return nil
		case <-ticker.C:
			e.beat(ctx, log)
		}
	}
}

func (e *Engine) beat(ctx context.Context, log *slog.Logger) {
	e.logHeartbeat(log)
	if e.cfg.StatusFunc != nil {
		e.cfg.StatusFunc(ctx, "alive")
	}
}

func (e *Engine) logHeartbeat(log *slog.Logger) {
	bestSymbol := ""
	bestSpread := 0.0
	var bestA, bestB float64

	for _, symbol := range e.cfg.Symbols {
		snap, ok := e.Snapshot(symbol)
		if !ok {
			continue
		}
		spread := detector.BestSpread(snap)
		if bestSymbol == "" || spread > bestSpread {
			bestSymbol = symbol
			bestSpread = spread
			bestA = snap.A.LastPrice
			bestB = snap.B.LastPrice
		}
	}

	if bestSymbol == "" {
		log.Info("monitoring, waiting for data")
		return
	}
	log.Info("monitoring",
		slog.String("symbol", bestSymbol),
		slog.Float64("primary_last", bestA),
		slog.Float64("secondary_last", bestB),
		slog.Float64("best_spread", bestSpread),
	)
}
