package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
)

type walletRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByOwnerAndCurrency(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error)
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error)
	Create(ctx context.Context, q repository.Querier, w *domain.Wallet) error
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateDailyLimit(ctx context.Context, tx *sql.Tx, w *domain.Wallet) error
}

type userRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, q repository.Querier, u *domain.User) error
	UpdateRole(ctx context.Context, id uuid.UUID, role domain.UserRole) (*domain.User, error)
}

type transactionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, int, error)
}

type ledgerRepository interface {
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error)
	GetByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
}

type reportRepository interface {
	WalletActivity(ctx context.Context, walletID uuid.UUID, from, to time.Time) (*repository.WalletActivity, error)
	MonthlySpending(ctx context.Context, walletID uuid.UUID, since time.Time) ([]repository.MonthlySpending, error)
	SystemAccountTotals(ctx context.Context) ([]repository.SystemAccountTotals, error)
	ListUsers(ctx context.Context, limit, offset int) ([]repository.UserSummary, int, error)
	ListWallets(ctx context.Context, limit, offset int) ([]repository.WalletOverview, int, error)
	ListTransactions(ctx context.Context, limit, offset int) ([]domain.Transaction, int, error)
	SystemStats(ctx context.Context, since time.Time) (*repository.SystemStats, error)
}

type tokenIssuer interface {
	Issue(u *domain.User) (string, error)
}
