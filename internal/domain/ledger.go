package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// LedgerEntry is write-once. WalletID is nil for system accounts.
type LedgerEntry struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	WalletID      *uuid.UUID
	AccountType   AccountType
	EntryType     EntryType
	Amount        decimal.Decimal
	Currency      Currency
	Description   string
	CreatedAt     time.Time
}

func (e LedgerEntry) Account() AccountRef {
	if e.WalletID == nil {
		return SystemRef(e.AccountType)
	}
	return WalletRef(*e.WalletID)
}
