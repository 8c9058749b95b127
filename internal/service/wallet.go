package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
)

type WalletService struct {
	wallets      walletRepository
	db           *sql.DB
	defaultLimit decimal.Decimal
}

func NewWalletService(wallets walletRepository, db *sql.DB, defaultLimit decimal.Decimal) *WalletService {
	if !defaultLimit.IsPositive() {
		defaultLimit = domain.DefaultDailyLimit
	}
	return &WalletService{wallets: wallets, db: db, defaultLimit: defaultLimit}
}

// newWallet builds an empty active wallet. Balances only ever move through
// ledger postings, so a new wallet always starts at zero.
func newWallet(ownerID uuid.UUID, currency domain.Currency, limit decimal.Decimal, now time.Time) *domain.Wallet {
	return &domain.Wallet{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Currency:          currency,
		Balance:           decimal.Zero,
		DailyLimit:        limit,
		SpentToday:        decimal.Zero,
		LastSpendingReset: domain.Day(now),
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *WalletService) CreateWallet(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	log := logging.FromContext(ctx)

	if !currency.IsValid() {
		return nil, fmt.Errorf("CreateWallet: %s: %w", currency, domain.ErrInvalidCurrency)
	}

	_, err := s.wallets.GetByOwnerAndCurrency(ctx, ownerID, currency)
	if err == nil {
		return nil, fmt.Errorf("CreateWallet: %w", domain.ErrWalletExists)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("CreateWallet: check existing: %w", err)
	}

	w := newWallet(ownerID, currency, s.defaultLimit, time.Now().UTC())
	// the unique constraint still catches a concurrent create
	if err := s.wallets.Create(ctx, s.db, w); err != nil {
		return nil, fmt.Errorf("CreateWallet: %w", err)
	}

	log.Info("wallet created",
		"wallet_id", w.ID,
		"owner_id", ownerID,
		"currency", currency,
	)
	return w, nil
}

func (s *WalletService) GetWallet(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("GetWallet: %w", err)
	}
	return w, nil
}

// GetOwnedWallet returns ErrNotFound both when the wallet is missing and when
// it belongs to someone else, so callers cannot probe for wallet ids.
func (s *WalletService) GetOwnedWallet(ctx context.Context, walletID, ownerID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("GetOwnedWallet: %w", err)
	}
	if w.OwnerID != ownerID {
		return nil, fmt.Errorf("GetOwnedWallet: %w", domain.ErrNotFound)
	}
	return w, nil
}

func (s *WalletService) ListWallets(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	wallets, err := s.wallets.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ListWallets: %w", err)
	}
	return wallets, nil
}

func (s *WalletService) UpdateDailyLimit(ctx context.Context, walletID, ownerID uuid.UUID, limit decimal.Decimal) (*domain.Wallet, error) {
	if limit.IsNegative() {
		return nil, fmt.Errorf("UpdateDailyLimit: %w", domain.ErrInvalidDailyLimit)
	}

	var (
		w        *domain.Wallet
		previous decimal.Decimal
	)
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		locked, err := s.wallets.GetForUpdate(ctx, tx, walletID)
		if err != nil {
			return err
		}
		if locked.OwnerID != ownerID {
			return domain.ErrNotFound
		}
		previous = locked.DailyLimit
		locked.DailyLimit = limit.Round(2)
		w = locked
		return s.wallets.UpdateDailyLimit(ctx, tx, locked)
	})
	if err != nil {
		return nil, fmt.Errorf("UpdateDailyLimit: %w", err)
	}

	logging.FromContext(ctx).Info("daily limit updated",
		"wallet_id", w.ID,
		"previous_limit", previous,
		"daily_limit", w.DailyLimit,
	)
	return w, nil
}
