// Package reconciliation compares cached wallet balances with the ledger and
// checks that the ledger as a whole balances per currency. Only Reconcile
// writes, and it locks the wallet the same way money movements do.
package reconciliation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/ledger"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
	"github.com/josh-kwaku/wallet-ledger/internal/metrics"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
	"github.com/josh-kwaku/wallet-ledger/internal/service/orchestrator"
)

const recommendReconcile = "Run reconciliation to sync cached balance with ledger"

type walletRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	ListAll(ctx context.Context, q repository.Querier) ([]domain.Wallet, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, w *domain.Wallet, newBalance decimal.Decimal) error
}

type ledgerTotals interface {
	SumDebitsByCurrency(ctx context.Context, currency domain.Currency) (decimal.Decimal, error)
	SumCreditsByCurrency(ctx context.Context, currency domain.Currency) (decimal.Decimal, error)
	CountEntries(ctx context.Context) (int64, error)
}

type balanceEngine interface {
	TrueBalance(ctx context.Context, q repository.Querier, walletID uuid.UUID) (decimal.Decimal, error)
	Verify(ctx context.Context, q repository.Querier, walletID uuid.UUID, cached decimal.Decimal) (*ledger.Verification, error)
}

type outboxRepo interface {
	Create(ctx context.Context, tx *sql.Tx, events ...domain.OutboxEvent) error
}

type AccountVerification struct {
	ledger.Verification
	OwnerID        uuid.UUID       `json:"owner_id"`
	Currency       domain.Currency `json:"currency"`
	Recommendation string          `json:"recommendation,omitempty"`
}

type Report struct {
	TotalAccounts    int                   `json:"total_accounts"`
	ConsistentCount  int                   `json:"consistent_count"`
	DiscrepancyCount int                   `json:"discrepancy_count"`
	AllConsistent    bool                  `json:"all_consistent"`
	Discrepancies    []AccountVerification `json:"discrepancies"`
	VerifiedAt       time.Time             `json:"verified_at"`
}

type CurrencyVerification struct {
	Currency     domain.Currency `json:"currency"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	Difference   decimal.Decimal `json:"difference"`
	Balanced     bool            `json:"balanced"`
}

type SystemVerification struct {
	Currencies  []CurrencyVerification `json:"currencies"`
	AllBalanced bool                   `json:"all_balanced"`
	EntryCount  int64                  `json:"entry_count"`
	VerifiedAt  time.Time              `json:"verified_at"`
}

type Reconciliation struct {
	WalletID       uuid.UUID       `json:"wallet_id"`
	PreviousCached decimal.Decimal `json:"previous_cached_balance"`
	NewBalance     decimal.Decimal `json:"new_balance"`
	Adjusted       bool            `json:"adjusted"`
	ReconciledAt   time.Time       `json:"reconciled_at"`
}

type Service struct {
	wallets  walletRepo
	ledger   ledgerTotals
	balances balanceEngine
	outbox   outboxRepo
	metrics  *metrics.Collector
	db       *sql.DB
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(
	wallets walletRepo,
	totals ledgerTotals,
	balances balanceEngine,
	outbox outboxRepo,
	collector *metrics.Collector,
	db *sql.DB,
) *Service {
	return &Service{
		wallets:  wallets,
		ledger:   totals,
		balances: balances,
		outbox:   outbox,
		metrics:  collector,
		db:       db,
		tracer:   otel.Tracer("github.com/josh-kwaku/wallet-ledger/reconciliation"),
		now:      time.Now,
	}
}

func (s *Service) VerifyAccount(ctx context.Context, walletID uuid.UUID) (*AccountVerification, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("VerifyAccount: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("VerifyAccount: %w", err)
	}
	v, err := s.verifyWallet(ctx, s.db, w)
	if err != nil {
		return nil, fmt.Errorf("VerifyAccount: %w", err)
	}
	return v, nil
}

func (s *Service) verifyWallet(ctx context.Context, q repository.Querier, w *domain.Wallet) (*AccountVerification, error) {
	v, err := s.balances.Verify(ctx, q, w.ID, w.Balance)
	if err != nil {
		return nil, err
	}
	av := &AccountVerification{
		Verification: *v,
		OwnerID:      w.OwnerID,
		Currency:     w.Currency,
	}
	if !v.Consistent {
		av.Recommendation = recommendReconcile
	}
	return av, nil
}

// VerifyAll checks every wallet. It never writes. Cached balances and ledger
// sums are read from one snapshot, so a transfer committing mid-scan cannot
// show up as a discrepancy.
func (s *Service) VerifyAll(ctx context.Context) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "reconciliation.VerifyAll")
	defer span.End()
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("VerifyAll: begin: %w", err)
	}
	defer tx.Rollback()

	wallets, err := s.wallets.ListAll(ctx, tx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("VerifyAll: %w", err)
	}

	report := &Report{
		TotalAccounts: len(wallets),
		Discrepancies: []AccountVerification{},
		VerifiedAt:    s.now().UTC(),
	}
	for i := range wallets {
		v, err := s.verifyWallet(ctx, tx, &wallets[i])
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("VerifyAll: wallet %s: %w", wallets[i].ID, err)
		}
		if v.Consistent {
			report.ConsistentCount++
			continue
		}
		report.DiscrepancyCount++
		report.Discrepancies = append(report.Discrepancies, *v)
		log.Warn("balance discrepancy detected",
			"wallet_id", v.WalletID,
			"cached_balance", v.CachedBalance,
			"ledger_balance", v.TrueBalance,
			"discrepancy", v.Discrepancy,
		)
	}
	report.AllConsistent = report.DiscrepancyCount == 0

	span.SetAttributes(
		attribute.Int("wallets.total", report.TotalAccounts),
		attribute.Int("wallets.discrepancies", report.DiscrepancyCount),
	)
	s.metrics.SetDiscrepancies(report.DiscrepancyCount)
	return report, nil
}

func (s *Service) VerifySystemWide(ctx context.Context, currency domain.Currency) (*CurrencyVerification, error) {
	if !currency.IsValid() {
		return nil, fmt.Errorf("VerifySystemWide: %s: %w", currency, domain.ErrInvalidCurrency)
	}
	debits, err := s.ledger.SumDebitsByCurrency(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("VerifySystemWide: %w", err)
	}
	credits, err := s.ledger.SumCreditsByCurrency(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("VerifySystemWide: %w", err)
	}
	return &CurrencyVerification{
		Currency:     currency,
		TotalDebits:  debits,
		TotalCredits: credits,
		Difference:   debits.Sub(credits),
		Balanced:     debits.Equal(credits),
	}, nil
}

// VerifyAllCurrencies runs VerifySystemWide for every supported currency. An
// unbalanced currency means a bug wrote entries outside the posting rules; it
// is logged at error level but reported rather than returned as an error.
func (s *Service) VerifyAllCurrencies(ctx context.Context) (*SystemVerification, error) {
	ctx, span := s.tracer.Start(ctx, "reconciliation.VerifyAllCurrencies")
	defer span.End()
	log := logging.FromContext(ctx)

	result := &SystemVerification{AllBalanced: true, VerifiedAt: s.now().UTC()}
	unbalanced := 0
	for _, c := range domain.AllCurrencies {
		cv, err := s.VerifySystemWide(ctx, c)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("VerifyAllCurrencies: %w", err)
		}
		if !cv.Balanced {
			result.AllBalanced = false
			unbalanced++
			log.Error("ledger unbalanced",
				"currency", c,
				"total_debits", cv.TotalDebits,
				"total_credits", cv.TotalCredits,
				"difference", cv.Difference,
			)
		}
		result.Currencies = append(result.Currencies, *cv)
	}

	count, err := s.ledger.CountEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("VerifyAllCurrencies: %w", err)
	}
	result.EntryCount = count

	s.metrics.SetUnbalancedCurrencies(unbalanced)
	return result, nil
}

// RequireBalancedLedger fails with ErrLedgerInvariantViolation when any
// currency's debits and credits differ.
func (s *Service) RequireBalancedLedger(ctx context.Context) error {
	sv, err := s.VerifyAllCurrencies(ctx)
	if err != nil {
		return fmt.Errorf("RequireBalancedLedger: %w", err)
	}
	if sv.AllBalanced {
		return nil
	}
	for _, cv := range sv.Currencies {
		if !cv.Balanced {
			return fmt.Errorf("RequireBalancedLedger: %s off by %s: %w",
				cv.Currency, cv.Difference, domain.ErrLedgerInvariantViolation)
		}
	}
	return nil
}

// Reconcile overwrites the cached balance with the ledger balance under the
// wallet's row lock.
func (s *Service) Reconcile(ctx context.Context, walletID uuid.UUID) (*Reconciliation, error) {
	ctx, span := s.tracer.Start(ctx, "reconciliation.Reconcile", trace.WithAttributes(
		attribute.String("wallet.id", walletID.String()),
	))
	defer span.End()
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", domain.Storage("reconcile.begin", err))
	}
	defer tx.Rollback()

	locked, err := orchestrator.LockWalletsInOrder(ctx, tx, s.wallets, walletID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("Reconcile: %w", err)
	}
	w := locked[walletID]

	balance, err := s.balances.TrueBalance(ctx, tx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", domain.Storage("reconcile.true_balance", err))
	}

	now := s.now().UTC()
	result := &Reconciliation{
		WalletID:       w.ID,
		PreviousCached: w.Balance,
		NewBalance:     balance,
		Adjusted:       !w.Balance.Equal(balance),
		ReconciledAt:   now,
	}

	if result.Adjusted {
		if err := s.wallets.UpdateBalance(ctx, tx, w, balance); err != nil {
			return nil, fmt.Errorf("Reconcile: %w", domain.Storage("reconcile.update_balance", err))
		}
		event, err := orchestrator.NewOutboxEvent(ctx, domain.EventTypeBalanceChanged, w.ID, domain.BalanceChangedPayload{
			WalletID:        w.ID,
			OwnerID:         w.OwnerID,
			Currency:        w.Currency,
			PreviousBalance: result.PreviousCached,
			NewBalance:      balance,
			Reason:          "reconciliation",
		}, now)
		if err != nil {
			return nil, fmt.Errorf("Reconcile: %w", err)
		}
		if err := s.outbox.Create(ctx, tx, event); err != nil {
			return nil, fmt.Errorf("Reconcile: %w", domain.Storage("reconcile.enqueue_event", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Reconcile: %w", domain.Storage("reconcile.commit", err))
	}

	log.Info("wallet reconciled",
		"wallet_id", w.ID,
		"previous_cached_balance", result.PreviousCached,
		"new_balance", balance,
		"adjusted", result.Adjusted,
	)
	return result, nil
}
