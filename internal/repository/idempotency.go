package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type IdempotencyRecord struct {
	Key           string
	OwnerID       uuid.UUID
	ResultType    string
	RequestHash   string
	ResultPayload json.RawMessage
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Claim reserves rec's key for its owner inside tx. It returns false when a
// live record already holds the pair. A concurrent claimant blocks on the
// primary key until the holder's transaction ends, so at most one claim per
// pair can commit. Expired records are taken over in place.
func (r *IdempotencyRepository) Claim(ctx context.Context, tx *sql.Tx, rec *IdempotencyRecord) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO idempotency_records (idempotency_key, owner_id, result_type, request_hash, result_payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4, NULL, $5, $6)
		ON CONFLICT (idempotency_key, owner_id) DO UPDATE
			SET result_type = EXCLUDED.result_type,
				request_hash = EXCLUDED.request_hash,
				result_payload = NULL,
				created_at = EXCLUDED.created_at,
				expires_at = EXCLUDED.expires_at
			WHERE idempotency_records.expires_at <= EXCLUDED.created_at`,
		rec.Key, rec.OwnerID, rec.ResultType, rec.RequestHash, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("Claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Claim: rows affected: %w", err)
	}
	return n == 1, nil
}

// Complete stores the serialized result for a key claimed in the same tx.
func (r *IdempotencyRepository) Complete(ctx context.Context, tx *sql.Tx, key string, ownerID uuid.UUID, payload json.RawMessage) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE idempotency_records SET result_payload = $1 WHERE idempotency_key = $2 AND owner_id = $3`,
		[]byte(payload), key, ownerID,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Complete: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Complete: key %q not claimed", key)
	}
	return nil
}

// Get returns nil, nil when the owner holds no record for key.
func (r *IdempotencyRepository) Get(ctx context.Context, q Querier, key string, ownerID uuid.UUID) (*IdempotencyRecord, error) {
	var (
		rec     IdempotencyRecord
		payload []byte
	)
	err := q.QueryRowContext(ctx,
		`SELECT idempotency_key, owner_id, result_type, request_hash, result_payload, created_at, expires_at
		FROM idempotency_records WHERE idempotency_key = $1 AND owner_id = $2`,
		key, ownerID,
	).Scan(&rec.Key, &rec.OwnerID, &rec.ResultType, &rec.RequestHash, &payload, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	rec.ResultPayload = payload
	return &rec, nil
}

func (r *IdempotencyRepository) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE expires_at < $1`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: rows affected: %w", err)
	}
	return n, nil
}
