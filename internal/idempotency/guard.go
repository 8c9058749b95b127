// Package idempotency makes money movements safe to retry. A key is claimed
// inside the same database transaction as the operation it protects, so the
// stored result and the operation's writes commit or roll back together.
package idempotency

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
)

const DefaultTTL = 7 * 24 * time.Hour

type store interface {
	Claim(ctx context.Context, tx *sql.Tx, rec *repository.IdempotencyRecord) (bool, error)
	Complete(ctx context.Context, tx *sql.Tx, key string, ownerID uuid.UUID, payload json.RawMessage) error
	Get(ctx context.Context, q repository.Querier, key string, ownerID uuid.UUID) (*repository.IdempotencyRecord, error)
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

// Request identifies one protected call. Keys are scoped to OwnerID, and
// Hash fingerprints the arguments so a reused key with different arguments
// is refused instead of replayed.
type Request struct {
	Key     string
	OwnerID uuid.UUID
	Kind    string
	Hash    string
}

// Fingerprint hashes an operation name and its canonical arguments.
func Fingerprint(op string, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(op))
	for _, f := range fields {
		h.Write([]byte{0x1f})
		h.Write([]byte(f))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

type Guard struct {
	store store
	ttl   time.Duration
	now   func() time.Time
}

func NewGuard(store store, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{store: store, ttl: ttl, now: time.Now}
}

// ExecuteOnce runs op at most once per (key, owner). A replay returns the
// stored result with replayed set. Concurrent first attempts serialize on the
// key: the loser waits for the winner's transaction and then replays its
// result. An empty key runs op unconditionally.
func ExecuteOnce[R any](ctx context.Context, g *Guard, tx *sql.Tx, req Request, op func(ctx context.Context) (R, error)) (R, bool, error) {
	var zero R
	if req.Key == "" {
		res, err := op(ctx)
		return res, false, err
	}

	now := g.now().UTC()
	claimed, err := g.store.Claim(ctx, tx, &repository.IdempotencyRecord{
		Key:         req.Key,
		OwnerID:     req.OwnerID,
		ResultType:  req.Kind,
		RequestHash: req.Hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.ttl),
	})
	if err != nil {
		return zero, false, fmt.Errorf("ExecuteOnce: %w", domain.Storage("idempotency.claim", err))
	}

	if !claimed {
		res, err := replay[R](ctx, g, tx, req)
		if err != nil {
			return zero, false, fmt.Errorf("ExecuteOnce: %w", err)
		}
		logging.FromContext(ctx).Info("idempotent replay", "idempotency_key", req.Key, "result_type", req.Kind)
		return res, true, nil
	}

	res, err := op(ctx)
	if err != nil {
		return zero, false, err
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return zero, false, fmt.Errorf("ExecuteOnce: marshal result: %w", err)
	}
	if err := g.store.Complete(ctx, tx, req.Key, req.OwnerID, payload); err != nil {
		return zero, false, fmt.Errorf("ExecuteOnce: %w", domain.Storage("idempotency.complete", err))
	}
	return res, false, nil
}

func replay[R any](ctx context.Context, g *Guard, tx *sql.Tx, req Request) (R, error) {
	var res R
	rec, err := g.store.Get(ctx, tx, req.Key, req.OwnerID)
	if err != nil {
		return res, domain.Storage("idempotency.get", err)
	}
	if rec == nil || rec.ResultPayload == nil {
		return res, domain.Storage("idempotency.get", fmt.Errorf("record for key %q has no stored result", req.Key))
	}
	if rec.ResultType != req.Kind {
		return res, fmt.Errorf("key %q holds a %s result: %w", req.Key, rec.ResultType, domain.ErrIdempotencyKeyReused)
	}
	if rec.RequestHash != req.Hash {
		return res, fmt.Errorf("key %q was used with different arguments: %w", req.Key, domain.ErrIdempotencyKeyReused)
	}
	if err := json.Unmarshal(rec.ResultPayload, &res); err != nil {
		return res, fmt.Errorf("unmarshal stored result: %w", err)
	}
	return res, nil
}

func (g *Guard) CleanExpired(ctx context.Context) (int64, error) {
	n, err := g.store.CleanExpired(ctx, g.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: %w", err)
	}
	return n, nil
}

// StartJanitor deletes expired records every interval until ctx is done.
func (g *Guard) StartJanitor(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	logger.Info("idempotency janitor started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("idempotency janitor stopped")
			return
		case <-ticker.C:
			n, err := g.CleanExpired(ctx)
			if err != nil {
				logger.Error("failed to clean expired idempotency records", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired idempotency records removed", "count", n)
			}
		}
	}
}
