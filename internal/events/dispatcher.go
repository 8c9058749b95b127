// Package events delivers outbox rows to an external sink after the
// transaction that wrote them has committed. Delivery is at-least-once;
// consumers dedupe on the event id.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/metrics"
)

const (
	ResultDispatched = "dispatched"
	ResultRetry      = "retry"
	ResultFailed     = "failed"

	baseBackoff = time.Second
	maxBackoff  = 5 * time.Minute
)

// Sink publishes one event. It must be safe to call again with the same event.
type Sink interface {
	Publish(ctx context.Context, event domain.OutboxEvent) error
}

type outboxStore interface {
	ClaimDue(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error
	MarkRetry(ctx context.Context, tx *sql.Tx, id uuid.UUID, lastErr string, next time.Time) error
	MarkFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, lastErr string) error
}

type DispatcherConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

type Dispatcher struct {
	outbox  outboxStore
	sink    Sink
	db      *sql.DB
	logger  *slog.Logger
	metrics *metrics.Collector
	cfg     DispatcherConfig
	now     func() time.Time
}

func NewDispatcher(
	outbox outboxStore,
	sink Sink,
	db *sql.DB,
	logger *slog.Logger,
	collector *metrics.Collector,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Dispatcher{
		outbox:  outbox,
		sink:    sink,
		db:      db,
		logger:  logger,
		metrics: collector,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("outbox dispatcher started",
		"interval", d.cfg.Interval,
		"batch_size", d.cfg.BatchSize,
		"max_attempts", d.cfg.MaxAttempts,
	)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("outbox dispatch failed", "error", err)
			}
		}
	}
}

// DispatchOnce claims one batch of due events, publishes each and records the
// outcome. It returns how many events were published.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("DispatchOnce: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := d.now().UTC()
	due, err := d.outbox.ClaimDue(ctx, tx, now, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("DispatchOnce: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	published := 0
	for _, e := range due {
		result, err := d.deliver(ctx, tx, e, now)
		if err != nil {
			return 0, fmt.Errorf("DispatchOnce: event %s: %w", e.ID, err)
		}
		d.metrics.RecordOutbox(result)
		if result == ResultDispatched {
			published++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("DispatchOnce: commit: %w", err)
	}
	return published, nil
}

func (d *Dispatcher) deliver(ctx context.Context, tx *sql.Tx, e domain.OutboxEvent, now time.Time) (string, error) {
	pubErr := d.sink.Publish(ctx, e)
	if pubErr == nil {
		return ResultDispatched, d.outbox.MarkDispatched(ctx, tx, e.ID, now)
	}

	attempt := e.Attempts + 1
	if attempt >= d.cfg.MaxAttempts {
		d.logger.Error("outbox event abandoned",
			"event_id", e.ID,
			"event_type", e.EventType,
			"attempts", attempt,
			"error", pubErr,
		)
		return ResultFailed, d.outbox.MarkFailed(ctx, tx, e.ID, pubErr.Error())
	}

	next := now.Add(Backoff(attempt))
	d.logger.Warn("outbox publish failed, will retry",
		"event_id", e.ID,
		"event_type", e.EventType,
		"attempts", attempt,
		"next_attempt_at", next,
		"error", pubErr,
	)
	return ResultRetry, d.outbox.MarkRetry(ctx, tx, e.ID, pubErr.Error(), next)
}

// Backoff returns the delay before retry number attempt: one second doubled
// per prior attempt, capped at five minutes.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
