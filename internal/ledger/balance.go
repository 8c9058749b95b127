// Package ledger derives balances from ledger entries and builds the
// balanced entry sets that each kind of money movement posts.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/repository"
)

type entrySums interface {
	SumCredits(ctx context.Context, q repository.Querier, walletID uuid.UUID) (decimal.Decimal, error)
	SumDebits(ctx context.Context, q repository.Querier, walletID uuid.UUID) (decimal.Decimal, error)
}

// BalanceEngine treats the ledger as the source of truth for wallet balances.
type BalanceEngine struct {
	sums entrySums
}

func NewBalanceEngine(sums entrySums) *BalanceEngine {
	return &BalanceEngine{sums: sums}
}

// TrueBalance is credits minus debits. Pass the open *sql.Tx to include
// entries the current unit of work has not yet committed.
func (e *BalanceEngine) TrueBalance(ctx context.Context, q repository.Querier, walletID uuid.UUID) (decimal.Decimal, error) {
	credits, err := e.sums.SumCredits(ctx, q, walletID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("TrueBalance: %w", err)
	}
	debits, err := e.sums.SumDebits(ctx, q, walletID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("TrueBalance: %w", err)
	}
	return credits.Sub(debits), nil
}

func (e *BalanceEngine) HasSufficientBalance(ctx context.Context, q repository.Querier, walletID uuid.UUID, amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() {
		return true, nil
	}
	balance, err := e.TrueBalance(ctx, q, walletID)
	if err != nil {
		return false, fmt.Errorf("HasSufficientBalance: %w", err)
	}
	return balance.GreaterThanOrEqual(amount), nil
}

type Verification struct {
	WalletID      uuid.UUID       `json:"wallet_id"`
	TrueBalance   decimal.Decimal `json:"true_balance"`
	CachedBalance decimal.Decimal `json:"cached_balance"`
	Consistent    bool            `json:"consistent"`
	// Discrepancy is cached minus true; zero when consistent.
	Discrepancy decimal.Decimal `json:"discrepancy"`
}

// Verify compares cached against the ledger-derived balance with exact
// decimal equality.
func (e *BalanceEngine) Verify(ctx context.Context, q repository.Querier, walletID uuid.UUID, cached decimal.Decimal) (*Verification, error) {
	balance, err := e.TrueBalance(ctx, q, walletID)
	if err != nil {
		return nil, fmt.Errorf("Verify: %w", err)
	}
	return &Verification{
		WalletID:      walletID,
		TrueBalance:   balance,
		CachedBalance: cached,
		Consistent:    balance.Equal(cached),
		Discrepancy:   cached.Sub(balance),
	}, nil
}
