package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrForbidden          = &AppError{http.StatusForbidden, "FORBIDDEN", "Admin role required"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount       = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero with at most two decimal places"}
	ErrSameAccountTransfer = &AppError{http.StatusBadRequest, "SAME_ACCOUNT_TRANSFER", "Cannot transfer to the same wallet"}
	ErrAccountNotFound     = &AppError{http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Wallet not found"}
	ErrAccountInactive     = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_INACTIVE", "Wallet is inactive"}
	ErrInsufficientFunds   = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrDailyLimitExceeded  = &AppError{http.StatusUnprocessableEntity, "DAILY_LIMIT_EXCEEDED", "Daily spending limit exceeded"}
	ErrUnknownCurrencyPair = &AppError{http.StatusUnprocessableEntity, "UNKNOWN_CURRENCY_PAIR", "No exchange rate for this currency pair"}
	ErrInvalidCurrency     = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrWalletExists        = &AppError{http.StatusConflict, "WALLET_ALREADY_EXISTS", "Wallet already exists for this currency"}
	ErrInvalidDailyLimit   = &AppError{http.StatusBadRequest, "INVALID_DAILY_LIMIT", "Daily limit must not be negative"}
	ErrEmailTaken          = &AppError{http.StatusConflict, "EMAIL_TAKEN", "Email already registered"}
	ErrVersionConflict     = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrIdempotencyConflict = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used for a different operation"}
	ErrInvalidIdempotency  = &AppError{http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "Idempotency-Key must be 1 to 255 printable characters"}
	ErrStorageFailure      = &AppError{http.StatusServiceUnavailable, "STORAGE_FAILURE", "Storage temporarily unavailable, please retry"}
	ErrLedgerInvariant     = &AppError{http.StatusInternalServerError, "LEDGER_INVARIANT_VIOLATION", "Ledger invariant violated"}
)
