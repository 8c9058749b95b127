package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
)

type walletDTO struct {
	ID                  uuid.UUID `json:"id"`
	OwnerID             uuid.UUID `json:"owner_id"`
	Currency            string    `json:"currency"`
	Balance             string    `json:"balance"`
	DailyLimit          string    `json:"daily_limit"`
	SpentToday          string    `json:"spent_today"`
	RemainingDailyLimit string    `json:"remaining_daily_limit"`
	Active              bool      `json:"active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toWalletDTO(w *domain.Wallet) walletDTO {
	// work on a copy so the stale-day reset does not leak into the caller
	c := *w
	remaining := c.RemainingDailyLimit(time.Now())
	return walletDTO{
		ID:                  c.ID,
		OwnerID:             c.OwnerID,
		Currency:            string(c.Currency),
		Balance:             c.Balance.StringFixed(2),
		DailyLimit:          c.DailyLimit.StringFixed(2),
		SpentToday:          c.SpentToday.StringFixed(2),
		RemainingDailyLimit: remaining.StringFixed(2),
		Active:              c.Active,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

type transactionDTO struct {
	ID              uuid.UUID  `json:"id"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	SourceWalletID  *uuid.UUID `json:"source_wallet_id,omitempty"`
	TargetWalletID  *uuid.UUID `json:"target_wallet_id,omitempty"`
	Amount          string     `json:"amount"`
	SourceCurrency  string     `json:"source_currency"`
	ConvertedAmount *string    `json:"converted_amount,omitempty"`
	TargetCurrency  *string    `json:"target_currency,omitempty"`
	ExchangeRate    *string    `json:"exchange_rate,omitempty"`
	Description     string     `json:"description"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func fixed(d *decimal.Decimal, places int32) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(places)
	return &s
}

func toTransactionDTO(t *domain.Transaction) transactionDTO {
	dto := transactionDTO{
		ID:              t.ID,
		Type:            string(t.Type),
		Status:          string(t.Status),
		SourceWalletID:  t.SourceWalletID,
		TargetWalletID:  t.TargetWalletID,
		Amount:          t.Amount.StringFixed(2),
		SourceCurrency:  string(t.SourceCurrency),
		ConvertedAmount: fixed(t.ConvertedAmount, 2),
		ExchangeRate:    fixed(t.ExchangeRate, 6),
		Description:     t.Description,
		FailureReason:   t.FailureReason,
		CreatedAt:       t.CreatedAt,
		CompletedAt:     t.CompletedAt,
	}
	if t.TargetCurrency != nil {
		c := string(*t.TargetCurrency)
		dto.TargetCurrency = &c
	}
	return dto
}

func toTransactionDTOs(txs []domain.Transaction) []transactionDTO {
	out := make([]transactionDTO, len(txs))
	for i := range txs {
		out[i] = toTransactionDTO(&txs[i])
	}
	return out
}

type transferDTO struct {
	TransactionID  uuid.UUID `json:"transaction_id"`
	Status         string    `json:"status"`
	SourceWalletID uuid.UUID `json:"source_wallet_id"`
	TargetWalletID uuid.UUID `json:"target_wallet_id"`
	SourceAmount   string    `json:"source_amount"`
	SourceCurrency string    `json:"source_currency"`
	TargetAmount   string    `json:"target_amount"`
	TargetCurrency string    `json:"target_currency"`
	ExchangeRate   string    `json:"exchange_rate"`
	Description    string    `json:"description"`
	CompletedAt    time.Time `json:"completed_at"`
}

func toTransferDTO(r *domain.TransferResult) transferDTO {
	return transferDTO{
		TransactionID:  r.TransactionID,
		Status:         string(r.Status),
		SourceWalletID: r.SourceWalletID,
		TargetWalletID: r.TargetWalletID,
		SourceAmount:   r.SourceAmount.StringFixed(2),
		SourceCurrency: string(r.SourceCurrency),
		TargetAmount:   r.TargetAmount.StringFixed(2),
		TargetCurrency: string(r.TargetCurrency),
		ExchangeRate:   r.ExchangeRate.StringFixed(6),
		Description:    r.Description,
		CompletedAt:    r.CompletedAt,
	}
}

type ledgerEntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	WalletID      *uuid.UUID `json:"wallet_id,omitempty"`
	AccountType   string     `json:"account_type"`
	EntryType     string     `json:"entry_type"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Description   string     `json:"description"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toLedgerEntryDTOs(entries []domain.LedgerEntry) []ledgerEntryDTO {
	out := make([]ledgerEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = ledgerEntryDTO{
			ID:            e.ID,
			TransactionID: e.TransactionID,
			WalletID:      e.WalletID,
			AccountType:   string(e.AccountType),
			EntryType:     string(e.EntryType),
			Amount:        e.Amount.StringFixed(2),
			Currency:      string(e.Currency),
			Description:   e.Description,
			CreatedAt:     e.CreatedAt,
		}
	}
	return out
}

type pageDTO[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
