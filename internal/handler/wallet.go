package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
)

type walletService interface {
	CreateWallet(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error)
	GetOwnedWallet(ctx context.Context, walletID, ownerID uuid.UUID) (*domain.Wallet, error)
	ListWallets(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error)
	UpdateDailyLimit(ctx context.Context, walletID, ownerID uuid.UUID, limit decimal.Decimal) (*domain.Wallet, error)
}

type WalletHandler struct {
	wallets walletService
}

func NewWalletHandler(wallets walletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

type createWalletRequest struct {
	Currency string `json:"currency"`
}

func (r createWalletRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be USD, EUR, or GBP"})
	}
	return errs
}

type updateDailyLimitRequest struct {
	DailyLimit *decimal.Decimal `json:"daily_limit"`
}

func (r updateDailyLimitRequest) Validate() []FieldError {
	var errs []FieldError
	if r.DailyLimit == nil {
		errs = append(errs, FieldError{Field: "daily_limit", Message: "required"})
	} else if r.DailyLimit.IsNegative() {
		errs = append(errs, FieldError{Field: "daily_limit", Message: "must not be negative"})
	}
	return errs
}

func (h *WalletHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wallet, err := h.wallets.CreateWallet(r.Context(), userID, domain.Currency(req.Currency))
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to create wallet", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/wallets/"+wallet.ID.String())
	RespondSuccess(w, http.StatusCreated, toWalletDTO(wallet))
}

func (h *WalletHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	wallets, err := h.wallets.ListWallets(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list wallets", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]walletDTO, len(wallets))
	for i := range wallets {
		dtos[i] = toWalletDTO(&wallets[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	wallet, ok := ownedWalletFromPath(w, r, h.wallets)
	if !ok {
		return
	}
	RespondSuccess(w, http.StatusOK, toWalletDTO(wallet))
}

func (h *WalletHandler) UpdateDailyLimit(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	walletID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req updateDailyLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wallet, err := h.wallets.UpdateDailyLimit(r.Context(), walletID, userID, *req.DailyLimit)
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to update daily limit", "wallet_id", walletID, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toWalletDTO(wallet))
}
