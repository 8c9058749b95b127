package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
)

const outboxColumns = `id, event_type, aggregate_id, correlation_id, payload, status,
	attempts, last_error, next_attempt_at, occurred_at, dispatched_at`

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *sql.Tx, events ...domain.OutboxEvent) error {
	for _, e := range events {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO outbox_events (`+outboxColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.ID, e.EventType, e.AggregateID, e.CorrelationID, []byte(e.Payload), e.Status,
			e.Attempts, e.LastError, e.NextAttemptAt, e.OccurredAt, e.DispatchedAt,
		)
		if err != nil {
			return fmt.Errorf("Create: %s: %w", e.EventType, err)
		}
	}
	return nil
}

// ClaimDue locks up to limit due events inside tx. SKIP LOCKED keeps
// concurrent dispatchers from claiming the same rows.
func (r *OutboxRepository) ClaimDue(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox_events
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY occurred_at LIMIT $3 FOR UPDATE SKIP LOCKED`,
		domain.OutboxStatusPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimDue: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimDue: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimDue: rows: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	return r.update(ctx, tx, "MarkDispatched",
		`UPDATE outbox_events SET status = $1, attempts = attempts + 1, dispatched_at = $2, last_error = NULL
		WHERE id = $3`,
		domain.OutboxStatusDispatched, at, id,
	)
}

// MarkRetry records a failed attempt and schedules the next one.
func (r *OutboxRepository) MarkRetry(ctx context.Context, tx *sql.Tx, id uuid.UUID, lastErr string, next time.Time) error {
	return r.update(ctx, tx, "MarkRetry",
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = $1, next_attempt_at = $2
		WHERE id = $3`,
		lastErr, next, id,
	)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, lastErr string) error {
	return r.update(ctx, tx, "MarkFailed",
		`UPDATE outbox_events SET status = $1, attempts = attempts + 1, last_error = $2
		WHERE id = $3`,
		domain.OutboxStatusFailed, lastErr, id,
	)
}

func (r *OutboxRepository) update(ctx context.Context, tx *sql.Tx, op, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func (r *OutboxRepository) GetByAggregateID(ctx context.Context, aggregateID uuid.UUID) ([]domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox_events WHERE aggregate_id = $1 ORDER BY occurred_at, event_type`,
		aggregateID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByAggregateID: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByAggregateID: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByAggregateID: rows: %w", err)
	}
	return events, nil
}

func scanOutboxEvent(s scanner) (*domain.OutboxEvent, error) {
	var (
		e       domain.OutboxEvent
		payload []byte
	)
	err := s.Scan(
		&e.ID, &e.EventType, &e.AggregateID, &e.CorrelationID, &payload, &e.Status,
		&e.Attempts, &e.LastError, &e.NextAttemptAt, &e.OccurredAt, &e.DispatchedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}
