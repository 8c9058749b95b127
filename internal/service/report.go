package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	DefaultAnalyticsDays = 30
	MaxAnalyticsDays     = 365
	DefaultReportMonths  = 6
	MaxReportMonths      = 24

	recentActivityWindow = 24 * time.Hour
)

type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NormalizePage clamps limit into [1, MaxPageSize] and offset to >= 0.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

type Analytics struct {
	WalletID              uuid.UUID       `json:"wallet_id"`
	Currency              domain.Currency `json:"currency"`
	Days                  int             `json:"days"`
	From                  time.Time       `json:"from"`
	To                    time.Time       `json:"to"`
	TotalTransferred      decimal.Decimal `json:"total_transferred"`
	CompletedTransactions int64           `json:"completed_transactions"`
	FailedTransactions    int64           `json:"failed_transactions"`
}

type MonthlyReport struct {
	WalletID uuid.UUID                    `json:"wallet_id"`
	Currency domain.Currency              `json:"currency"`
	Months   []repository.MonthlySpending `json:"months"`
}

// SystemAnalytics is the operator dashboard view. RecentTransactions counts
// transactions created within the last 24 hours before GeneratedAt.
type SystemAnalytics struct {
	repository.SystemStats
	GeneratedAt time.Time `json:"generated_at"`
}

type ReportService struct {
	wallets      walletRepository
	transactions transactionRepository
	ledger       ledgerRepository
	reports      reportRepository
	now          func() time.Time
}

func NewReportService(
	wallets walletRepository,
	transactions transactionRepository,
	ledger ledgerRepository,
	reports reportRepository,
) *ReportService {
	return &ReportService{
		wallets:      wallets,
		transactions: transactions,
		ledger:       ledger,
		reports:      reports,
		now:          time.Now,
	}
}

func (s *ReportService) TransactionHistory(ctx context.Context, walletID uuid.UUID, limit, offset int) (*Page[domain.Transaction], error) {
	limit, offset = NormalizePage(limit, offset)
	txs, total, err := s.transactions.GetByWalletID(ctx, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("TransactionHistory: %w", err)
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return &Page[domain.Transaction]{Items: txs, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *ReportService) LedgerHistory(ctx context.Context, walletID uuid.UUID, limit, offset int) (*Page[domain.LedgerEntry], error) {
	limit, offset = NormalizePage(limit, offset)
	entries, total, err := s.ledger.GetByWalletID(ctx, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("LedgerHistory: %w", err)
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return &Page[domain.LedgerEntry]{Items: entries, Total: total, Limit: limit, Offset: offset}, nil
}

// GetTransaction returns a transaction visible to ownerID: one where the
// owner holds the source or target wallet. A zero ownerID skips the check.
func (s *ReportService) GetTransaction(ctx context.Context, txID, ownerID uuid.UUID) (*domain.Transaction, error) {
	t, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	if ownerID == uuid.Nil {
		return t, nil
	}

	for _, id := range []*uuid.UUID{t.SourceWalletID, t.TargetWalletID} {
		if id == nil {
			continue
		}
		w, err := s.wallets.GetByID(ctx, *id)
		if err != nil {
			return nil, fmt.Errorf("GetTransaction: %w", err)
		}
		if w.OwnerID == ownerID {
			return t, nil
		}
	}
	return nil, fmt.Errorf("GetTransaction: %w", domain.ErrNotFound)
}

func (s *ReportService) TransactionEntries(ctx context.Context, txID, ownerID uuid.UUID) ([]domain.LedgerEntry, error) {
	if _, err := s.GetTransaction(ctx, txID, ownerID); err != nil {
		return nil, fmt.Errorf("TransactionEntries: %w", err)
	}
	entries, err := s.ledger.GetByTransactionID(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("TransactionEntries: %w", err)
	}
	return entries, nil
}

func (s *ReportService) Analytics(ctx context.Context, w *domain.Wallet, days int) (*Analytics, error) {
	if days <= 0 {
		days = DefaultAnalyticsDays
	}
	if days > MaxAnalyticsDays {
		days = MaxAnalyticsDays
	}

	to := s.now().UTC()
	from := to.AddDate(0, 0, -days)
	activity, err := s.reports.WalletActivity(ctx, w.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("Analytics: %w", err)
	}

	return &Analytics{
		WalletID:              w.ID,
		Currency:              w.Currency,
		Days:                  days,
		From:                  from,
		To:                    to,
		TotalTransferred:      activity.TotalTransferred,
		CompletedTransactions: activity.CompletedTransactions,
		FailedTransactions:    activity.FailedTransactions,
	}, nil
}

// MonthlyReport covers the current calendar month and the months-1 before it.
func (s *ReportService) MonthlyReport(ctx context.Context, w *domain.Wallet, months int) (*MonthlyReport, error) {
	if months <= 0 {
		months = DefaultReportMonths
	}
	if months > MaxReportMonths {
		months = MaxReportMonths
	}

	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
	spending, err := s.reports.MonthlySpending(ctx, w.ID, since)
	if err != nil {
		return nil, fmt.Errorf("MonthlyReport: %w", err)
	}
	if spending == nil {
		spending = []repository.MonthlySpending{}
	}
	return &MonthlyReport{WalletID: w.ID, Currency: w.Currency, Months: spending}, nil
}

func (s *ReportService) SystemAccounts(ctx context.Context) ([]repository.SystemAccountTotals, error) {
	totals, err := s.reports.SystemAccountTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("SystemAccounts: %w", err)
	}
	if totals == nil {
		totals = []repository.SystemAccountTotals{}
	}
	return totals, nil
}

func (s *ReportService) ListUsers(ctx context.Context, limit, offset int) (*Page[repository.UserSummary], error) {
	limit, offset = NormalizePage(limit, offset)
	users, total, err := s.reports.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}
	if users == nil {
		users = []repository.UserSummary{}
	}
	return &Page[repository.UserSummary]{Items: users, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *ReportService) ListAllWallets(ctx context.Context, limit, offset int) (*Page[repository.WalletOverview], error) {
	limit, offset = NormalizePage(limit, offset)
	wallets, total, err := s.reports.ListWallets(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListAllWallets: %w", err)
	}
	if wallets == nil {
		wallets = []repository.WalletOverview{}
	}
	return &Page[repository.WalletOverview]{Items: wallets, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *ReportService) ListAllTransactions(ctx context.Context, limit, offset int) (*Page[domain.Transaction], error) {
	limit, offset = NormalizePage(limit, offset)
	txs, total, err := s.reports.ListTransactions(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListAllTransactions: %w", err)
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return &Page[domain.Transaction]{Items: txs, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *ReportService) SystemAnalytics(ctx context.Context) (*SystemAnalytics, error) {
	now := s.now().UTC()
	stats, err := s.reports.SystemStats(ctx, now.Add(-recentActivityWindow))
	if err != nil {
		return nil, fmt.Errorf("SystemAnalytics: %w", err)
	}
	if stats.WalletsByCurrency == nil {
		stats.WalletsByCurrency = []repository.CurrencyHoldings{}
	}
	return &SystemAnalytics{SystemStats: *stats, GeneratedAt: now}, nil
}
