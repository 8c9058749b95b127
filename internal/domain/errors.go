package domain

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrInvalidAmount            = errors.New("amount must be greater than zero with at most two decimal places")
	ErrSameAccountTransfer      = errors.New("cannot transfer to same account")
	ErrAccountNotFound          = errors.New("account not found")
	ErrAccountInactive          = errors.New("account inactive")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrDailyLimitExceeded       = errors.New("daily spending limit exceeded")
	ErrUnknownCurrencyPair      = errors.New("unknown currency pair")
	ErrInvalidCurrency          = errors.New("invalid currency")
	ErrStorageFailure           = errors.New("storage failure")
	ErrLedgerInvariantViolation = errors.New("ledger invariant violation")
	ErrWalletExists             = errors.New("wallet already exists for this currency")
	ErrInvalidDailyLimit        = errors.New("daily limit must not be negative")
	ErrVersionConflict          = errors.New("optimistic lock conflict")
	ErrTransactionTerminal      = errors.New("transaction already in terminal state")
	ErrIdempotencyKeyReused     = errors.New("idempotency key already used for a different operation")
	ErrEmailTaken               = errors.New("email already registered")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrInvalidRequest           = errors.New("invalid request")
)

// StorageError marks a persistence failure in a write path. It matches both
// ErrStorageFailure and the wrapped driver error under errors.Is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + ErrStorageFailure.Error() + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
