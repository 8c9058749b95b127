package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTypeTransferCompleted    EventType = "TRANSFER_COMPLETED"
	EventTypeTopUpCompleted       EventType = "TOP_UP_COMPLETED"
	EventTypeWithdrawalCompleted  EventType = "WITHDRAWAL_COMPLETED"
	EventTypeBalanceChanged       EventType = "BALANCE_CHANGED"
	EventTypeLedgerEntriesCreated EventType = "LEDGER_ENTRIES_CREATED"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusDispatched OutboxStatus = "dispatched"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// OutboxEvent is an event recorded in the same database transaction as the
// state change it describes and delivered after commit.
type OutboxEvent struct {
	ID            uuid.UUID
	EventType     EventType
	AggregateID   uuid.UUID
	CorrelationID string
	Payload       json.RawMessage
	Status        OutboxStatus
	Attempts      int
	LastError     *string
	NextAttemptAt time.Time
	OccurredAt    time.Time
	DispatchedAt  *time.Time
}

type TransferCompletedPayload struct {
	TransactionID  uuid.UUID       `json:"transaction_id"`
	SourceWalletID uuid.UUID       `json:"source_wallet_id"`
	TargetWalletID uuid.UUID       `json:"target_wallet_id"`
	SourceOwnerID  uuid.UUID       `json:"source_owner_id"`
	TargetOwnerID  uuid.UUID       `json:"target_owner_id"`
	SourceAmount   decimal.Decimal `json:"source_amount"`
	SourceCurrency Currency        `json:"source_currency"`
	TargetAmount   decimal.Decimal `json:"target_amount"`
	TargetCurrency Currency        `json:"target_currency"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
}

type TopUpCompletedPayload struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      Currency        `json:"currency"`
	NewBalance    decimal.Decimal `json:"new_balance"`
}

type WithdrawalCompletedPayload struct {
	TransactionID       uuid.UUID       `json:"transaction_id"`
	WalletID            uuid.UUID       `json:"wallet_id"`
	OwnerID             uuid.UUID       `json:"owner_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            Currency        `json:"currency"`
	MaskedBankReference string          `json:"masked_bank_reference"`
	BankName            string          `json:"bank_name"`
}

type BalanceChangedPayload struct {
	WalletID        uuid.UUID       `json:"wallet_id"`
	OwnerID         uuid.UUID       `json:"owner_id"`
	Currency        Currency        `json:"currency"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	Reason          string          `json:"reason"`
	TransactionID   *uuid.UUID      `json:"transaction_id,omitempty"`
}

type LedgerEntriesCreatedPayload struct {
	TransactionID uuid.UUID   `json:"transaction_id"`
	EntryIDs      []uuid.UUID `json:"entry_ids"`
	EntryCount    int         `json:"entry_count"`
}

// MaskBankReference hides all but the last four characters of a bank
// account reference.
func MaskBankReference(ref string) string {
	r := []rune(ref)
	if len(r) < 4 {
		return "****"
	}
	return "****" + string(r[len(r)-4:])
}
