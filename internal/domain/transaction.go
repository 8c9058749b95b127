package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeTopUp      TransactionType = "TOP_UP"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusPending
}

type Transaction struct {
	ID              uuid.UUID         `json:"id"`
	SourceWalletID  *uuid.UUID        `json:"source_wallet_id,omitempty"`
	TargetWalletID  *uuid.UUID        `json:"target_wallet_id,omitempty"`
	Type            TransactionType   `json:"type"`
	Status          TransactionStatus `json:"status"`
	Amount          decimal.Decimal   `json:"amount"`
	SourceCurrency  Currency          `json:"source_currency"`
	ConvertedAmount *decimal.Decimal  `json:"converted_amount,omitempty"`
	TargetCurrency  *Currency         `json:"target_currency,omitempty"`
	ExchangeRate    *decimal.Decimal  `json:"exchange_rate,omitempty"`
	Description     string            `json:"description"`
	FailureReason   *string           `json:"failure_reason,omitempty"`
	IdempotencyKey  *string           `json:"idempotency_key,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

func NewTransaction(txType TransactionType, amount decimal.Decimal, currency Currency, description string, now time.Time) *Transaction {
	return &Transaction{
		ID:             uuid.New(),
		Type:           txType,
		Status:         TransactionStatusPending,
		Amount:         amount,
		SourceCurrency: currency,
		Description:    description,
		CreatedAt:      now,
	}
}

func (t *Transaction) Complete(now time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("Complete: %s: %w", t.Status, ErrTransactionTerminal)
	}
	t.Status = TransactionStatusCompleted
	t.CompletedAt = &now
	return nil
}

func (t *Transaction) Fail(reason string) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("Fail: %s: %w", t.Status, ErrTransactionTerminal)
	}
	t.Status = TransactionStatusFailed
	t.FailureReason = &reason
	return nil
}

func (t *Transaction) Cancel() error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("Cancel: %s: %w", t.Status, ErrTransactionTerminal)
	}
	t.Status = TransactionStatusCancelled
	return nil
}

func (t *Transaction) IsCrossCurrency() bool {
	return t.TargetCurrency != nil && *t.TargetCurrency != t.SourceCurrency
}

// TransferResult is what a transfer returns, and what an idempotent replay
// of the same transfer returns again.
type TransferResult struct {
	TransactionID  uuid.UUID         `json:"transaction_id"`
	Status         TransactionStatus `json:"status"`
	SourceWalletID uuid.UUID         `json:"source_wallet_id"`
	TargetWalletID uuid.UUID         `json:"target_wallet_id"`
	SourceAmount   decimal.Decimal   `json:"source_amount"`
	SourceCurrency Currency          `json:"source_currency"`
	TargetAmount   decimal.Decimal   `json:"target_amount"`
	TargetCurrency Currency          `json:"target_currency"`
	ExchangeRate   decimal.Decimal   `json:"exchange_rate"`
	Description    string            `json:"description"`
	CompletedAt    time.Time         `json:"completed_at"`
}

// Result kinds stored alongside an idempotency key. A key recorded for one
// kind cannot be replayed as another.
const (
	ResultKindTransfer    = "transfer"
	ResultKindTransaction = "transaction"
)
