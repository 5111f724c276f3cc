// Package telemetry publishes engine state to Redis for external dashboards.
// Publishing is strictly best-effort: a slow or absent Redis never blocks or
// fails the decision loop.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arbx-trading/arbx/internal/domain"
)

const (
	snapshotChannel  = "arbx:snapshots"
	executionChannel = "arbx:executions"
	statusKey        = "arbx:status"
	statusTTL        = 30 * time.Second
	publishTimeout   = 2 * time.Second
)

// Config holds connection parameters for the telemetry publisher.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Publisher pushes snapshots, execution summaries and liveness status into
// Redis pub/sub channels and keys.
type Publisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewPublisher connects to Redis and verifies connectivity.
func NewPublisher(ctx context.Context, cfg Config, logger *slog.Logger) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("telemetry: ping redis: %w", err)
	}
	return &Publisher{
		rdb:    rdb,
		logger: logger.With(slog.String("component", "telemetry")),
	}, nil
}

// SnapshotHook returns a hook the engine invokes with every paired snapshot.
// Failures are logged at debug level and swallowed.
func (p *Publisher) SnapshotHook() domain.TelemetryHook {
	return func(ctx context.Context, snap domain.QuoteSnapshot) {
		payload, err := json.Marshal(snap)
		if err != nil {
			return
		}

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := p.rdb.Publish(pubCtx, snapshotChannel, payload).Err(); err != nil {
			p.logger.Debug("snapshot publish failed", slog.Any("error", err))
		}
	}
}

// PublishExecution pushes one pair-execution summary. Best effort.
func (p *Publisher) PublishExecution(ctx context.Context, sum domain.ExecutionSummary) {
	payload, err := json.Marshal(sum)
	if err != nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.rdb.Publish(pubCtx, executionChannel, payload).Err(); err != nil {
		p.logger.Debug("execution publish failed", slog.Any("error", err))
	}
}

// Heartbeat refreshes the liveness status key.
func (p *Publisher) Heartbeat(ctx context.Context, status string) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.rdb.Set(pubCtx, statusKey, status, statusTTL).Err(); err != nil {
		p.logger.Debug("status update failed", slog.Any("error", err))
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
