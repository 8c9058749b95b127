package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// AllCurrencies is the fixed set of currencies the ledger accepts.
var AllCurrencies = []Currency{CurrencyUSD, CurrencyEUR, CurrencyGBP}

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	default:
		return false
	}
}

func (c Currency) Symbol() string {
	switch c {
	case CurrencyUSD:
		return "$"
	case CurrencyEUR:
		return "€"
	case CurrencyGBP:
		return "£"
	default:
		return ""
	}
}

type AccountType string

const (
	AccountTypeWallet     AccountType = "WALLET"
	AccountTypeSystemCash AccountType = "SYSTEM_CASH"
	AccountTypeExchange   AccountType = "EXCHANGE"
	AccountTypeFee        AccountType = "FEE"
)

func (t AccountType) IsSystem() bool {
	return t == AccountTypeSystemCash || t == AccountTypeExchange || t == AccountTypeFee
}

// AccountRef names one side of a ledger posting. Wallet refs carry the
// wallet id; system refs carry only their kind and take their currency
// from the entry they appear in.
type AccountRef struct {
	Type     AccountType
	WalletID uuid.UUID
}

func WalletRef(id uuid.UUID) AccountRef {
	return AccountRef{Type: AccountTypeWallet, WalletID: id}
}

func SystemRef(kind AccountType) AccountRef {
	return AccountRef{Type: kind}
}

func (r AccountRef) IsWallet() bool {
	return r.Type == AccountTypeWallet
}

// DefaultDailyLimit applies to wallets created without an explicit limit.
var DefaultDailyLimit = decimal.RequireFromString("10000.00")

type Wallet struct {
	ID                uuid.UUID
	OwnerID           uuid.UUID
	Currency          Currency
	Balance           decimal.Decimal
	DailyLimit        decimal.Decimal
	SpentToday        decimal.Decimal
	LastSpendingReset time.Time
	Active            bool
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Day truncates t to its UTC calendar date; spending windows are UTC days.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ResetDailySpendingIfNeeded zeroes SpentToday the first time a new day is
// observed. Callers must hold the wallet's row lock when the result is persisted.
func (w *Wallet) ResetDailySpendingIfNeeded(now time.Time) bool {
	today := Day(now)
	if Day(w.LastSpendingReset).Equal(today) {
		return false
	}
	w.SpentToday = decimal.Zero
	w.LastSpendingReset = today
	return true
}

func (w *Wallet) CanSpend(amount decimal.Decimal, now time.Time) bool {
	w.ResetDailySpendingIfNeeded(now)
	return w.SpentToday.Add(amount).LessThanOrEqual(w.DailyLimit)
}

func (w *Wallet) RecordSpending(amount decimal.Decimal, now time.Time) {
	w.ResetDailySpendingIfNeeded(now)
	w.SpentToday = w.SpentToday.Add(amount)
}

func (w *Wallet) RemainingDailyLimit(now time.Time) decimal.Decimal {
	w.ResetDailySpendingIfNeeded(now)
	remaining := w.DailyLimit.Sub(w.SpentToday)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}
