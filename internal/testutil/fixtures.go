package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
)

const TestPassword = "password123"

func SeedUser(t *testing.T, db *sql.DB, email string) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: string(hash),
		Role:         domain.UserRoleUser,
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, first_name, last_name, password_hash, role, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Role, u.Status, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

// SeedWallet creates an empty active wallet with the default daily limit.
func SeedWallet(t *testing.T, db *sql.DB, ownerID uuid.UUID, currency domain.Currency) *domain.Wallet {
	t.Helper()

	now := time.Now().UTC()
	w := &domain.Wallet{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Currency:          currency,
		Balance:           decimal.Zero,
		DailyLimit:        domain.DefaultDailyLimit,
		SpentToday:        decimal.Zero,
		LastSpendingReset: domain.Day(now),
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err := db.Exec(
		`INSERT INTO wallets (id, owner_id, currency, balance, daily_limit, spent_today, last_spending_reset, active, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)`,
		w.ID, w.OwnerID, w.Currency, w.Balance, w.DailyLimit, w.SpentToday, w.LastSpendingReset, w.Active, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed wallet %s/%s: %v", ownerID, currency, err)
	}
	return w
}

// FundWallet posts a balanced top-up for amount straight into the ledger and
// sets the cached balance to match.
func FundWallet(t *testing.T, db *sql.DB, walletID uuid.UUID, amount string) {
	t.Helper()

	value := decimal.RequireFromString(amount)
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("fund wallet: begin: %v", err)
	}
	defer tx.Rollback()

	var currency string
	if err := tx.QueryRow(`SELECT currency FROM wallets WHERE id = $1 FOR UPDATE`, walletID).Scan(&currency); err != nil {
		t.Fatalf("fund wallet: load %s: %v", walletID, err)
	}

	txID := uuid.New()
	now := time.Now().UTC()
	if _, err := tx.Exec(
		`INSERT INTO transactions (id, target_wallet_id, type, status, amount, source_currency, description, created_at, completed_at)
		 VALUES ($1, $2, 'TOP_UP', 'COMPLETED', $3, $4, 'Seed funding', $5, $5)`,
		txID, walletID, value, currency, now,
	); err != nil {
		t.Fatalf("fund wallet: transaction: %v", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO ledger_entries (id, transaction_id, wallet_id, account_type, entry_type, amount, currency, description, created_at)
		 VALUES ($1, $2, NULL, 'SYSTEM_CASH', 'DEBIT', $3, $4, 'Cash received for top-up', $5),
		        ($6, $2, $7, 'WALLET', 'CREDIT', $3, $4, 'Wallet funded', $5)`,
		uuid.New(), txID, value, currency, now, uuid.New(), walletID,
	); err != nil {
		t.Fatalf("fund wallet: entries: %v", err)
	}
	if _, err := tx.Exec(
		`UPDATE wallets SET balance = balance + $1, version = version + 1 WHERE id = $2`, value, walletID,
	); err != nil {
		t.Fatalf("fund wallet: balance: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("fund wallet: commit: %v", err)
	}
}

func GetWalletBalance(t *testing.T, db *sql.DB, walletID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	if err := db.QueryRow(`SELECT balance FROM wallets WHERE id = $1`, walletID).Scan(&balance); err != nil {
		t.Fatalf("get wallet balance %s: %v", walletID, err)
	}
	return balance
}

func GetSpentToday(t *testing.T, db *sql.DB, walletID uuid.UUID) decimal.Decimal {
	t.Helper()

	var spent decimal.Decimal
	if err := db.QueryRow(`SELECT spent_today FROM wallets WHERE id = $1`, walletID).Scan(&spent); err != nil {
		t.Fatalf("get spent today %s: %v", walletID, err)
	}
	return spent
}

func CountLedgerEntries(t *testing.T, db *sql.DB, transactionID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE transaction_id = $1`, transactionID).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for transaction %s: %v", transactionID, err)
	}
	return count
}

func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	// table names come from test code only
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

// SumByCurrency returns total debits and credits across every account.
func SumByCurrency(t *testing.T, db *sql.DB, currency domain.Currency) (debits, credits decimal.Decimal) {
	t.Helper()

	err := db.QueryRow(
		`SELECT
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'DEBIT'), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'CREDIT'), 0)
		FROM ledger_entries WHERE currency = $1`, currency,
	).Scan(&debits, &credits)
	if err != nil {
		t.Fatalf("sum ledger for %s: %v", currency, err)
	}
	return debits, credits
}

func SetWalletActive(t *testing.T, db *sql.DB, walletID uuid.UUID, active bool) {
	t.Helper()
	if _, err := db.Exec(`UPDATE wallets SET active = $1 WHERE id = $2`, active, walletID); err != nil {
		t.Fatalf("set wallet %s active=%v: %v", walletID, active, err)
	}
}

func SetDailyLimit(t *testing.T, db *sql.DB, walletID uuid.UUID, limit string) {
	t.Helper()
	if _, err := db.Exec(`UPDATE wallets SET daily_limit = $1 WHERE id = $2`, limit, walletID); err != nil {
		t.Fatalf("set daily limit %s: %v", walletID, err)
	}
}

// SetSpending simulates spending recorded on an earlier day.
func SetSpending(t *testing.T, db *sql.DB, walletID uuid.UUID, spent string, resetDay time.Time) {
	t.Helper()
	if _, err := db.Exec(
		`UPDATE wallets SET spent_today = $1, last_spending_reset = $2 WHERE id = $3`,
		spent, domain.Day(resetDay), walletID,
	); err != nil {
		t.Fatalf("set spending %s: %v", walletID, err)
	}
}

// CorruptCachedBalance overwrites the cached balance without touching the
// ledger, producing a discrepancy.
func CorruptCachedBalance(t *testing.T, db *sql.DB, walletID uuid.UUID, balance string) {
	t.Helper()
	if _, err := db.Exec(`UPDATE wallets SET balance = $1 WHERE id = $2`, balance, walletID); err != nil {
		t.Fatalf("corrupt balance %s: %v", walletID, err)
	}
}

// InsertOrphanEntry writes a single system-account entry with no
// counterpart, leaving currency unbalanced.
func InsertOrphanEntry(t *testing.T, db *sql.DB, currency domain.Currency, entryType domain.EntryType, amount string) {
	t.Helper()

	txID := uuid.New()
	now := time.Now().UTC()
	if _, err := db.Exec(
		`INSERT INTO transactions (id, type, status, amount, source_currency, description, created_at, completed_at)
		 VALUES ($1, 'TOP_UP', 'COMPLETED', $2, $3, 'orphan', $4, $4)`,
		txID, amount, currency, now,
	); err != nil {
		t.Fatalf("orphan entry: transaction: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO ledger_entries (id, transaction_id, wallet_id, account_type, entry_type, amount, currency, description, created_at)
		 VALUES ($1, $2, NULL, 'SYSTEM_CASH', $3, $4, $5, 'orphan', $6)`,
		uuid.New(), txID, entryType, amount, currency, now,
	); err != nil {
		t.Fatalf("orphan entry: entry: %v", err)
	}
}
