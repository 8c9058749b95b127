// Package orchestrator is the only writer of ledger state. Each money
// movement runs as one database transaction: wallets are locked in a fixed
// order, balances are checked against the ledger, entries are posted and the
// cached balances refreshed before commit.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/fx"
	"github.com/josh-kwaku/wallet-ledger/internal/idempotency"
	"github.com/josh-kwaku/wallet-ledger/internal/metrics"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
)

type walletRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, w *domain.Wallet, newBalance decimal.Decimal) error
	UpdateSpending(ctx context.Context, tx *sql.Tx, w *domain.Wallet) error
}

type ledgerRepo interface {
	Append(ctx context.Context, tx *sql.Tx, entries []domain.LedgerEntry) error
}

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
}

type outboxRepo interface {
	Create(ctx context.Context, tx *sql.Tx, events ...domain.OutboxEvent) error
}

type balanceEngine interface {
	TrueBalance(ctx context.Context, q repository.Querier, walletID uuid.UUID) (decimal.Decimal, error)
	HasSufficientBalance(ctx context.Context, q repository.Querier, walletID uuid.UUID, amount decimal.Decimal) (bool, error)
}

type rateService interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to domain.Currency) (*fx.Conversion, error)
}

const (
	opTransfer = "transfer"
	opTopUp    = "top_up"
	opWithdraw = "withdraw"
)

type Service struct {
	wallets      walletRepo
	ledger       ledgerRepo
	transactions transactionRepo
	outbox       outboxRepo
	balances     balanceEngine
	rates        rateService
	guard        *idempotency.Guard
	metrics      *metrics.Collector
	db           *sql.DB
	tracer       trace.Tracer
	now          func() time.Time
}

func NewService(
	wallets walletRepo,
	ledger ledgerRepo,
	transactions transactionRepo,
	outbox outboxRepo,
	balances balanceEngine,
	rates rateService,
	guard *idempotency.Guard,
	collector *metrics.Collector,
	db *sql.DB,
) *Service {
	return &Service{
		wallets:      wallets,
		ledger:       ledger,
		transactions: transactions,
		outbox:       outbox,
		balances:     balances,
		rates:        rates,
		guard:        guard,
		metrics:      collector,
		db:           db,
		tracer:       otel.Tracer("github.com/josh-kwaku/wallet-ledger/orchestrator"),
		now:          time.Now,
	}
}

// validateAmount accepts strictly positive amounts with at most two decimal
// places.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("validateAmount: %s: %w", amount, domain.ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("validateAmount: %s has more than two decimal places: %w", amount, domain.ErrInvalidAmount)
	}
	return nil
}

type balanceChange struct {
	wallet   *domain.Wallet
	previous decimal.Decimal
	current  decimal.Decimal
}

// refreshBalances rewrites each wallet's cached balance from the ledger as
// seen inside tx.
func (s *Service) refreshBalances(ctx context.Context, tx *sql.Tx, wallets ...*domain.Wallet) ([]balanceChange, error) {
	changes := make([]balanceChange, 0, len(wallets))
	for _, w := range wallets {
		previous := w.Balance
		balance, err := s.balances.TrueBalance(ctx, tx, w.ID)
		if err != nil {
			return nil, domain.Storage("refresh_balance.true_balance", err)
		}
		if err := s.wallets.UpdateBalance(ctx, tx, w, balance); err != nil {
			return nil, domain.Storage("refresh_balance.update", err)
		}
		changes = append(changes, balanceChange{wallet: w, previous: previous, current: balance})
	}
	return changes, nil
}

// lockOne locks a single wallet and maps a missing row to ErrAccountNotFound.
func (s *Service) lockOne(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error) {
	locked, err := LockWalletsInOrder(ctx, tx, s.wallets, id)
	if err != nil {
		return nil, err
	}
	w := locked[id]
	if !w.Active {
		return nil, fmt.Errorf("wallet %s: %w", id, domain.ErrAccountInactive)
	}
	return w, nil
}

// finish records the outcome of an operation on its span and in metrics.
func (s *Service) finish(span trace.Span, op string, started time.Time, replayed bool, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil && isBusinessFailure(err):
		outcome = metrics.OutcomeRejected
		span.SetStatus(codes.Error, err.Error())
	case err != nil:
		outcome = metrics.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case replayed:
		outcome = metrics.OutcomeReplayed
	}
	s.metrics.RecordOperation(op, outcome, started)
	span.End()
}

func isBusinessFailure(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidAmount,
		domain.ErrSameAccountTransfer,
		domain.ErrAccountNotFound,
		domain.ErrAccountInactive,
		domain.ErrInsufficientFunds,
		domain.ErrDailyLimitExceeded,
		domain.ErrUnknownCurrencyPair,
		domain.ErrIdempotencyKeyReused,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func logFailure(log *slog.Logger, op string, err error, args ...any) {
	args = append(args, "error", err)
	if isBusinessFailure(err) {
		log.Info(op+" rejected", args...)
		return
	}
	log.Error(op+" failed", args...)
}

func optionalKey(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}
