package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
)

type WalletActivity struct {
	TotalTransferred      decimal.Decimal `db:"total_transferred" json:"total_transferred"`
	CompletedTransactions int64           `db:"completed_transactions" json:"completed_transactions"`
	FailedTransactions    int64           `db:"failed_transactions" json:"failed_transactions"`
}

type MonthlySpending struct {
	Year             int             `db:"year" json:"year"`
	Month            int             `db:"month" json:"month"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	TransactionCount int64           `db:"transaction_count" json:"transaction_count"`
}

type SystemAccountTotals struct {
	AccountType  domain.AccountType `db:"account_type" json:"account_type"`
	Currency     domain.Currency    `db:"currency" json:"currency"`
	TotalDebits  decimal.Decimal    `db:"total_debits" json:"total_debits"`
	TotalCredits decimal.Decimal    `db:"total_credits" json:"total_credits"`
}

type UserSummary struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	Email       string            `db:"email" json:"email"`
	FirstName   string            `db:"first_name" json:"first_name"`
	LastName    string            `db:"last_name" json:"last_name"`
	Role        domain.UserRole   `db:"role" json:"role"`
	Status      domain.UserStatus `db:"status" json:"status"`
	WalletCount int64             `db:"wallet_count" json:"wallet_count"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

type WalletOverview struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	OwnerID    uuid.UUID       `db:"owner_id" json:"owner_id"`
	OwnerEmail string          `db:"owner_email" json:"owner_email"`
	Currency   domain.Currency `db:"currency" json:"currency"`
	Balance    decimal.Decimal `db:"balance" json:"balance"`
	DailyLimit decimal.Decimal `db:"daily_limit" json:"daily_limit"`
	Active     bool            `db:"active" json:"active"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

type CurrencyHoldings struct {
	Currency     domain.Currency `db:"currency" json:"currency"`
	WalletCount  int64           `db:"wallet_count" json:"wallet_count"`
	TotalBalance decimal.Decimal `db:"total_balance" json:"total_balance"`
}

type SystemStats struct {
	TotalUsers            int64              `db:"total_users" json:"total_users"`
	ActiveUsers           int64              `db:"active_users" json:"active_users"`
	TotalWallets          int64              `db:"total_wallets" json:"total_wallets"`
	TotalTransactions     int64              `db:"total_transactions" json:"total_transactions"`
	CompletedTransactions int64              `db:"completed_transactions" json:"completed_transactions"`
	FailedTransactions    int64              `db:"failed_transactions" json:"failed_transactions"`
	RecentTransactions    int64              `db:"recent_transactions" json:"recent_transactions"`
	WalletsByCurrency     []CurrencyHoldings `db:"-" json:"wallets_by_currency"`
}

// ReportRepository serves read-only aggregates and operator listings over
// users, wallets, transactions and ledger entries.
type ReportRepository struct {
	db *sqlx.DB
	// byJSON maps columns onto domain structs through their json tags, which
	// already use the column names.
	byJSON *sqlx.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	byJSON := sqlx.NewDb(db, "postgres")
	byJSON.Mapper = reflectx.NewMapperFunc("json", strings.ToLower)
	return &ReportRepository{db: sqlx.NewDb(db, "postgres"), byJSON: byJSON}
}

func (r *ReportRepository) WalletActivity(ctx context.Context, walletID uuid.UUID, from, to time.Time) (*WalletActivity, error) {
	var a WalletActivity
	err := r.db.GetContext(ctx, &a,
		`SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = 'TRANSFER' AND status = 'COMPLETED' AND source_wallet_id = $1), 0) AS total_transferred,
			COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed_transactions,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed_transactions
		FROM transactions
		WHERE (source_wallet_id = $1 OR target_wallet_id = $1)
			AND created_at >= $2 AND created_at < $3`,
		walletID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("WalletActivity: %w", err)
	}
	return &a, nil
}

// MonthlySpending totals completed outgoing transfers and withdrawals per
// calendar month since the given time, newest month first.
func (r *ReportRepository) MonthlySpending(ctx context.Context, walletID uuid.UUID, since time.Time) ([]MonthlySpending, error) {
	var out []MonthlySpending
	err := r.db.SelectContext(ctx, &out,
		`SELECT
			EXTRACT(YEAR FROM created_at AT TIME ZONE 'UTC')::int AS year,
			EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC')::int AS month,
			COALESCE(SUM(amount), 0) AS total_amount,
			COUNT(*) AS transaction_count
		FROM transactions
		WHERE source_wallet_id = $1
			AND status = 'COMPLETED'
			AND type IN ('TRANSFER', 'WITHDRAWAL')
			AND created_at >= $2
		GROUP BY 1, 2
		ORDER BY 1 DESC, 2 DESC`,
		walletID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("MonthlySpending: %w", err)
	}
	return out, nil
}

func (r *ReportRepository) SystemAccountTotals(ctx context.Context) ([]SystemAccountTotals, error) {
	var out []SystemAccountTotals
	err := r.db.SelectContext(ctx, &out,
		`SELECT
			account_type,
			currency,
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'DEBIT'), 0) AS total_debits,
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'CREDIT'), 0) AS total_credits
		FROM ledger_entries
		WHERE wallet_id IS NULL
		GROUP BY account_type, currency
		ORDER BY account_type, currency`,
	)
	if err != nil {
		return nil, fmt.Errorf("SystemAccountTotals: %w", err)
	}
	return out, nil
}

// ListUsers pages through users newest first, with their wallet counts.
func (r *ReportRepository) ListUsers(ctx context.Context, limit, offset int) ([]UserSummary, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, fmt.Errorf("ListUsers: count: %w", err)
	}

	var out []UserSummary
	err := r.db.SelectContext(ctx, &out,
		`SELECT u.id, u.email, u.first_name, u.last_name, u.role, u.status, u.created_at,
			COUNT(w.id) AS wallet_count
		FROM users u
		LEFT JOIN wallets w ON w.owner_id = u.id
		GROUP BY u.id
		ORDER BY u.created_at DESC, u.id
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListUsers: %w", err)
	}
	return out, total, nil
}

func (r *ReportRepository) ListWallets(ctx context.Context, limit, offset int) ([]WalletOverview, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM wallets`); err != nil {
		return nil, 0, fmt.Errorf("ListWallets: count: %w", err)
	}

	var out []WalletOverview
	err := r.db.SelectContext(ctx, &out,
		`SELECT w.id, w.owner_id, u.email AS owner_email, w.currency, w.balance,
			w.daily_limit, w.active, w.created_at
		FROM wallets w
		JOIN users u ON u.id = w.owner_id
		ORDER BY w.created_at DESC, w.id
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListWallets: %w", err)
	}
	return out, total, nil
}

func (r *ReportRepository) ListTransactions(ctx context.Context, limit, offset int) ([]domain.Transaction, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM transactions`); err != nil {
		return nil, 0, fmt.Errorf("ListTransactions: count: %w", err)
	}

	var out []domain.Transaction
	err := r.byJSON.SelectContext(ctx, &out,
		`SELECT `+transactionColumns+`
		FROM transactions
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListTransactions: %w", err)
	}
	return out, total, nil
}

// SystemStats counts users, wallets and transactions. RecentTransactions
// covers transactions created at or after since.
func (r *ReportRepository) SystemStats(ctx context.Context, since time.Time) (*SystemStats, error) {
	var st SystemStats
	err := r.db.GetContext(ctx, &st,
		`SELECT
			(SELECT COUNT(*) FROM users) AS total_users,
			(SELECT COUNT(*) FROM users WHERE status = 'active') AS active_users,
			(SELECT COUNT(*) FROM wallets) AS total_wallets,
			COUNT(*) AS total_transactions,
			COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed_transactions,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed_transactions,
			COUNT(*) FILTER (WHERE created_at >= $1) AS recent_transactions
		FROM transactions`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("SystemStats: %w", err)
	}

	err = r.db.SelectContext(ctx, &st.WalletsByCurrency,
		`SELECT currency, COUNT(*) AS wallet_count, COALESCE(SUM(balance), 0) AS total_balance
		FROM wallets
		GROUP BY currency
		ORDER BY currency`,
	)
	if err != nil {
		return nil, fmt.Errorf("SystemStats: holdings: %w", err)
	}
	return &st, nil
}
