package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
)

type walletLocker interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error)
}

// LockWalletsInOrder takes row locks on the given wallets in ascending order
// of their string form. Every path that locks more than one wallet must go
// through here; two transfers in opposite directions then queue on the same
// first row instead of deadlocking.
func LockWalletsInOrder(ctx context.Context, tx *sql.Tx, wallets walletLocker, ids ...uuid.UUID) (map[uuid.UUID]*domain.Wallet, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})
	sorted = slices.Compact(sorted)

	result := make(map[uuid.UUID]*domain.Wallet, len(sorted))
	for _, id := range sorted {
		w, err := wallets.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("LockWalletsInOrder: wallet %s: %w", id, domain.ErrAccountNotFound)
			}
			if repository.IsLockFailure(err) {
				return nil, fmt.Errorf("LockWalletsInOrder: wallet %s: %w", id, domain.Storage("lock_wallet.contention", err))
			}
			return nil, fmt.Errorf("LockWalletsInOrder: %w", domain.Storage("lock_wallet", err))
		}
		result[id] = w
	}
	return result, nil
}
