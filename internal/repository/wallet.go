package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
)

const walletColumns = `id, owner_id, currency, balance, daily_limit, spent_today,
	last_spending_reset, active, version, created_at, updated_at`

const walletOwnerCurrencyKey = "wallets_owner_currency_key"

type WalletRepository struct {
	db *sql.DB
}

func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id,
	)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return w, nil
}

func (r *WalletRepository) GetByOwnerAndCurrency(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 AND currency = $2`,
		ownerID, currency,
	)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByOwnerAndCurrency: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByOwnerAndCurrency: %w", err)
	}
	return w, nil
}

func (r *WalletRepository) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	return r.list(ctx, r.db, "GetByOwnerID",
		`SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 ORDER BY created_at`, ownerID,
	)
}

// ListAll returns every wallet ordered by id, read through q so a caller can
// pin the scan to one snapshot.
func (r *WalletRepository) ListAll(ctx context.Context, q Querier) ([]domain.Wallet, error) {
	return r.list(ctx, q, "ListAll", `SELECT `+walletColumns+` FROM wallets ORDER BY id`)
}

func (r *WalletRepository) list(ctx context.Context, q Querier, op, query string, args ...any) ([]domain.Wallet, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return wallets, nil
}

func (r *WalletRepository) Create(ctx context.Context, q Querier, w *domain.Wallet) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO wallets (`+walletColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.ID, w.OwnerID, w.Currency, w.Balance, w.DailyLimit, w.SpentToday,
		w.LastSpendingReset, w.Active, w.Version, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if IsConstraint(err, walletOwnerCurrencyKey) {
			return fmt.Errorf("Create: %w", domain.ErrWalletExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WalletRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id,
	)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return w, nil
}

// UpdateBalance writes the cached balance. The version check guards against
// a writer that skipped the row lock.
func (r *WalletRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, w *domain.Wallet, newBalance decimal.Decimal) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now().UTC(), w.ID, w.Version,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrVersionConflict)
	}

	w.Balance = newBalance
	w.Version++
	return nil
}

func (r *WalletRepository) UpdateSpending(ctx context.Context, tx *sql.Tx, w *domain.Wallet) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE wallets SET spent_today = $1, last_spending_reset = $2, updated_at = $3
		WHERE id = $4`,
		w.SpentToday, w.LastSpendingReset, time.Now().UTC(), w.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateSpending: %w", err)
	}
	return nil
}

func (r *WalletRepository) UpdateDailyLimit(ctx context.Context, tx *sql.Tx, w *domain.Wallet) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE wallets SET daily_limit = $1, updated_at = $2 WHERE id = $3`,
		w.DailyLimit, time.Now().UTC(), w.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateDailyLimit: %w", err)
	}
	return nil
}

func scanWallet(s scanner) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.Scan(
		&w.ID, &w.OwnerID, &w.Currency, &w.Balance, &w.DailyLimit, &w.SpentToday,
		&w.LastSpendingReset, &w.Active, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
