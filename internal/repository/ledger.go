package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
)

const ledgerColumns = `id, transaction_id, wallet_id, account_type, entry_type,
	amount, currency, description, created_at`

// LedgerRepository is the append-only entry store. It deliberately has no
// update or delete methods.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append writes entries inside the caller's transaction; they become visible
// together when it commits or not at all.
func (r *LedgerRepository) Append(ctx context.Context, tx *sql.Tx, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	)
	if err != nil {
		return fmt.Errorf("Append: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.TransactionID, e.WalletID, e.AccountType, e.EntryType,
			e.Amount, e.Currency, e.Description, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("Append: %s %s: %w", e.EntryType, e.AccountType, err)
		}
	}
	return nil
}

func (r *LedgerRepository) SumCredits(ctx context.Context, q Querier, walletID uuid.UUID) (decimal.Decimal, error) {
	sum, err := sumForWallet(ctx, q, walletID, domain.EntryTypeCredit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("SumCredits: %w", err)
	}
	return sum, nil
}

func (r *LedgerRepository) SumDebits(ctx context.Context, q Querier, walletID uuid.UUID) (decimal.Decimal, error) {
	sum, err := sumForWallet(ctx, q, walletID, domain.EntryTypeDebit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("SumDebits: %w", err)
	}
	return sum, nil
}

func sumForWallet(ctx context.Context, q Querier, walletID uuid.UUID, entryType domain.EntryType) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE wallet_id = $1 AND entry_type = $2`,
		walletID, entryType,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *LedgerRepository) SumDebitsByCurrency(ctx context.Context, currency domain.Currency) (decimal.Decimal, error) {
	sum, err := r.sumForCurrency(ctx, currency, domain.EntryTypeDebit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("SumDebitsByCurrency: %w", err)
	}
	return sum, nil
}

func (r *LedgerRepository) SumCreditsByCurrency(ctx context.Context, currency domain.Currency) (decimal.Decimal, error) {
	sum, err := r.sumForCurrency(ctx, currency, domain.EntryTypeCredit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("SumCreditsByCurrency: %w", err)
	}
	return sum, nil
}

func (r *LedgerRepository) sumForCurrency(ctx context.Context, currency domain.Currency, entryType domain.EntryType) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE currency = $1 AND entry_type = $2`,
		currency, entryType,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *LedgerRepository) CountEntries(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountEntries: %w", err)
	}
	return n, nil
}

func (r *LedgerRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE transaction_id = $1 ORDER BY created_at, entry_type DESC, id`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByTransactionID: %w", err)
	}
	defer rows.Close()

	entries, err := collectLedgerEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("GetByTransactionID: %w", err)
	}
	return entries, nil
}

// GetByWalletID pages through a wallet's entries, newest first.
func (r *LedgerRepository) GetByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE wallet_id = $1`, walletID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByWalletID: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE wallet_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByWalletID: %w", err)
	}
	defer rows.Close()

	entries, err := collectLedgerEntries(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByWalletID: %w", err)
	}
	return entries, total, nil
}

func collectLedgerEntries(rows *sql.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.Scan(
		&e.ID, &e.TransactionID, &e.WalletID, &e.AccountType, &e.EntryType,
		&e.Amount, &e.Currency, &e.Description, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
