package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/idempotency"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
	"github.com/josh-kwaku/wallet-ledger/internal/service/orchestrator"
)

type moneyMover interface {
	Transfer(ctx context.Context, req orchestrator.TransferRequest) (*domain.TransferResult, error)
	TopUp(ctx context.Context, req orchestrator.TopUpRequest) (*domain.Transaction, error)
	Withdraw(ctx context.Context, req orchestrator.WithdrawRequest) (*domain.Transaction, error)
}

// TransferHandler exposes the three money movements. Source wallets must
// belong to the caller; a transfer target may be anyone's wallet.
type TransferHandler struct {
	money   moneyMover
	wallets ownedWalletGetter
}

func NewTransferHandler(money moneyMover, wallets ownedWalletGetter) *TransferHandler {
	return &TransferHandler{money: money, wallets: wallets}
}

func validateAmount(amount *decimal.Decimal) []FieldError {
	switch {
	case amount == nil:
		return []FieldError{{Field: "amount", Message: "required"}}
	case !amount.IsPositive():
		return []FieldError{{Field: "amount", Message: "must be greater than 0"}}
	case !amount.Equal(amount.Truncate(2)):
		return []FieldError{{Field: "amount", Message: "at most two decimal places"}}
	}
	return nil
}

type transferRequest struct {
	SourceWalletID string           `json:"source_wallet_id"`
	TargetWalletID string           `json:"target_wallet_id"`
	Amount         *decimal.Decimal `json:"amount"`
	Description    string           `json:"description"`
}

func (r transferRequest) Validate() []FieldError {
	var errs []FieldError
	if _, err := uuid.Parse(r.SourceWalletID); err != nil {
		errs = append(errs, FieldError{Field: "source_wallet_id", Message: "must be a wallet id"})
	}
	if _, err := uuid.Parse(r.TargetWalletID); err != nil {
		errs = append(errs, FieldError{Field: "target_wallet_id", Message: "must be a wallet id"})
	}
	errs = append(errs, validateAmount(r.Amount)...)
	if len(r.Description) > 255 {
		errs = append(errs, FieldError{Field: "description", Message: "at most 255 characters"})
	}
	return errs
}

type topUpRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
}

func (r topUpRequest) Validate() []FieldError {
	errs := validateAmount(r.Amount)
	if len(r.Description) > 255 {
		errs = append(errs, FieldError{Field: "description", Message: "at most 255 characters"})
	}
	return errs
}

type withdrawRequest struct {
	Amount            *decimal.Decimal `json:"amount"`
	BankAccountNumber string           `json:"bank_account_number"`
	BankName          string           `json:"bank_name"`
	Description       string           `json:"description"`
}

func (r withdrawRequest) Validate() []FieldError {
	errs := validateAmount(r.Amount)
	if r.BankAccountNumber == "" {
		errs = append(errs, FieldError{Field: "bank_account_number", Message: "required"})
	}
	if r.BankName == "" {
		errs = append(errs, FieldError{Field: "bank_name", Message: "required"})
	}
	if len(r.Description) > 255 {
		errs = append(errs, FieldError{Field: "description", Message: "at most 255 characters"})
	}
	return errs
}

func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	sourceID := uuid.MustParse(req.SourceWalletID)
	if _, err := h.wallets.GetOwnedWallet(r.Context(), sourceID, userID); err != nil {
		RespondDomainError(w, err)
		return
	}

	res, err := h.money.Transfer(r.Context(), orchestrator.TransferRequest{
		SourceWalletID: sourceID,
		TargetWalletID: uuid.MustParse(req.TargetWalletID),
		Amount:         *req.Amount,
		Description:    req.Description,
		IdempotencyKey: idempotency.KeyFromContext(r.Context()),
		RequestedBy:    userID,
	})
	if err != nil {
		log.Warn("transfer failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/transactions/"+res.TransactionID.String())
	RespondSuccess(w, http.StatusCreated, toTransferDTO(res))
}

func (h *TransferHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	wallet, ok := ownedWalletFromPath(w, r, h.wallets)
	if !ok {
		return
	}

	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	t, err := h.money.TopUp(r.Context(), orchestrator.TopUpRequest{
		WalletID:       wallet.ID,
		Amount:         *req.Amount,
		Description:    req.Description,
		IdempotencyKey: idempotency.KeyFromContext(r.Context()),
		RequestedBy:    wallet.OwnerID,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("top-up failed", "wallet_id", wallet.ID, "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/transactions/"+t.ID.String())
	RespondSuccess(w, http.StatusCreated, toTransactionDTO(t))
}

func (h *TransferHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	wallet, ok := ownedWalletFromPath(w, r, h.wallets)
	if !ok {
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	t, err := h.money.Withdraw(r.Context(), orchestrator.WithdrawRequest{
		WalletID:          wallet.ID,
		Amount:            *req.Amount,
		BankAccountNumber: req.BankAccountNumber,
		BankName:          req.BankName,
		Description:       req.Description,
		IdempotencyKey:    idempotency.KeyFromContext(r.Context()),
		RequestedBy:       wallet.OwnerID,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("withdrawal failed", "wallet_id", wallet.ID, "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/transactions/"+t.ID.String())
	RespondSuccess(w, http.StatusCreated, toTransactionDTO(t))
}
