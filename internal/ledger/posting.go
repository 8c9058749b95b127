package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
)

const (
	DescTransferOut      = "Transfer out"
	DescTransferIn       = "Transfer in"
	DescTransferOutFX    = "Transfer out (FX)"
	DescTransferInFX     = "Transfer in (FX)"
	DescFXReceived       = "FX: received source currency"
	DescFXReleased       = "FX: released target currency"
	DescTopUpCash        = "Cash received for top-up"
	DescTopUpWallet      = "Wallet funded"
	DescWithdrawalWallet = "Withdrawal"
	DescWithdrawalCash   = "Cash paid out"
)

type leg struct {
	account     domain.AccountRef
	entryType   domain.EntryType
	amount      decimal.Decimal
	currency    domain.Currency
	description string
}

func build(txID uuid.UUID, at time.Time, legs ...leg) []domain.LedgerEntry {
	entries := make([]domain.LedgerEntry, 0, len(legs))
	for _, l := range legs {
		e := domain.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: txID,
			AccountType:   l.account.Type,
			EntryType:     l.entryType,
			Amount:        l.amount,
			Currency:      l.currency,
			Description:   l.description,
			CreatedAt:     at,
		}
		if l.account.IsWallet() {
			id := l.account.WalletID
			e.WalletID = &id
		}
		entries = append(entries, e)
	}
	return entries
}

// SameCurrencyTransfer debits the source wallet and credits the target for
// the same amount.
func SameCurrencyTransfer(txID uuid.UUID, source, target uuid.UUID, amount decimal.Decimal, currency domain.Currency, at time.Time) []domain.LedgerEntry {
	return build(txID, at,
		leg{domain.WalletRef(source), domain.EntryTypeDebit, amount, currency, DescTransferOut},
		leg{domain.WalletRef(target), domain.EntryTypeCredit, amount, currency, DescTransferIn},
	)
}

// CrossCurrencyTransfer routes value through the EXCHANGE suspense account so
// that each currency leg balances on its own.
func CrossCurrencyTransfer(
	txID uuid.UUID,
	source, target uuid.UUID,
	amount decimal.Decimal, sourceCurrency domain.Currency,
	converted decimal.Decimal, targetCurrency domain.Currency,
	at time.Time,
) []domain.LedgerEntry {
	exchange := domain.SystemRef(domain.AccountTypeExchange)
	return build(txID, at,
		leg{domain.WalletRef(source), domain.EntryTypeDebit, amount, sourceCurrency, DescTransferOutFX},
		leg{exchange, domain.EntryTypeCredit, amount, sourceCurrency, DescFXReceived},
		leg{exchange, domain.EntryTypeDebit, converted, targetCurrency, DescFXReleased},
		leg{domain.WalletRef(target), domain.EntryTypeCredit, converted, targetCurrency, DescTransferInFX},
	)
}

func TopUp(txID uuid.UUID, wallet uuid.UUID, amount decimal.Decimal, currency domain.Currency, at time.Time) []domain.LedgerEntry {
	return build(txID, at,
		leg{domain.SystemRef(domain.AccountTypeSystemCash), domain.EntryTypeDebit, amount, currency, DescTopUpCash},
		leg{domain.WalletRef(wallet), domain.EntryTypeCredit, amount, currency, DescTopUpWallet},
	)
}

func Withdrawal(txID uuid.UUID, wallet uuid.UUID, amount decimal.Decimal, currency domain.Currency, at time.Time) []domain.LedgerEntry {
	return build(txID, at,
		leg{domain.WalletRef(wallet), domain.EntryTypeDebit, amount, currency, DescWithdrawalWallet},
		leg{domain.SystemRef(domain.AccountTypeSystemCash), domain.EntryTypeCredit, amount, currency, DescWithdrawalCash},
	)
}

// CheckBalanced rejects an entry set whose debits and credits differ in any
// currency, or that contains a negative amount.
func CheckBalanced(entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("CheckBalanced: empty entry set: %w", domain.ErrLedgerInvariantViolation)
	}

	type totals struct{ debits, credits decimal.Decimal }
	byCurrency := make(map[domain.Currency]*totals)
	for _, e := range entries {
		if e.Amount.IsNegative() {
			return fmt.Errorf("CheckBalanced: negative amount %s: %w", e.Amount, domain.ErrLedgerInvariantViolation)
		}
		t, ok := byCurrency[e.Currency]
		if !ok {
			t = &totals{}
			byCurrency[e.Currency] = t
		}
		switch e.EntryType {
		case domain.EntryTypeDebit:
			t.debits = t.debits.Add(e.Amount)
		case domain.EntryTypeCredit:
			t.credits = t.credits.Add(e.Amount)
		default:
			return fmt.Errorf("CheckBalanced: entry type %q: %w", e.EntryType, domain.ErrLedgerInvariantViolation)
		}
	}

	for currency, t := range byCurrency {
		if !t.debits.Equal(t.credits) {
			return fmt.Errorf("CheckBalanced: %s debits %s != credits %s: %w",
				currency, t.debits, t.credits, domain.ErrLedgerInvariantViolation)
		}
	}
	return nil
}
