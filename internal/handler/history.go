package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
	"github.com/josh-kwaku/wallet-ledger/internal/service"
)

type historyService interface {
	TransactionHistory(ctx context.Context, walletID uuid.UUID, limit, offset int) (*service.Page[domain.Transaction], error)
	LedgerHistory(ctx context.Context, walletID uuid.UUID, limit, offset int) (*service.Page[domain.LedgerEntry], error)
	GetTransaction(ctx context.Context, txID, ownerID uuid.UUID) (*domain.Transaction, error)
	TransactionEntries(ctx context.Context, txID, ownerID uuid.UUID) ([]domain.LedgerEntry, error)
	Analytics(ctx context.Context, w *domain.Wallet, days int) (*service.Analytics, error)
	MonthlyReport(ctx context.Context, w *domain.Wallet, months int) (*service.MonthlyReport, error)
}

type HistoryHandler struct {
	reports historyService
	wallets ownedWalletGetter
}

func NewHistoryHandler(reports historyService, wallets ownedWalletGetter) *HistoryHandler {
	return &HistoryHandler{reports: reports, wallets: wallets}
}

// intParam reads a non-negative integer query parameter. Missing values
// return 0 so the service default applies.
func intParam(r *http.Request, name string) (int, *FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &FieldError{Field: name, Message: "must be a non-negative integer"}
	}
	return n, nil
}

func pageParams(r *http.Request) (int, int, []FieldError) {
	var errs []FieldError
	limit, fe := intParam(r, "limit")
	if fe != nil {
		errs = append(errs, *fe)
	}
	offset, fe := intParam(r, "offset")
	if fe != nil {
		errs = append(errs, *fe)
	}
	return limit, offset, errs
}

func (h *HistoryHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	wallet, ok := ownedWalletFromPath(w, r, h.wallets)
	if !ok {
		return
	}
	limit, offset, fields := pageParams(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	page, err := h.reports.TransactionHistory(r.Context(), wallet.ID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load transaction history", "wallet_id", wallet.ID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, pageDTO[transactionDTO]{
		Items:  toTransactionDTOs(page.Items),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (h *HistoryHandler) LedgerEntries(w http.ResponseWriter, r *http.Request) {
	wallet, ok := ownedWalletFromPath(w, r, h.wallets)
	if !ok {
		return
	}
	limit, offset, fields := pageParams(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	page, err := h.reports.LedgerHistory(r.Context(), wallet.ID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load ledger history", "wallet_id", wallet.ID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, pageDTO[ledgerEntryDTO]{
		Items:  toLedgerEntryDTOs(page.Items),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (h *HistoryHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	wallet, ok := ownedWalletFromPath(w, r, h.wallets)
	if !ok {
		return
	}
	days, fe := intParam(r, "days")
	if fe != nil {
		RespondValidationError(w, []FieldError{*fe})
		return
	}

	analytics, err := h.reports.Analytics(r.Context(), wallet, days)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to compute analytics", "wallet_id", wallet.ID, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, analytics)
}

func (h *HistoryHandler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	wallet, ok := ownedWalletFromPath(w, r, h.wallets)
	if !ok {
		return
	}
	months, fe := intParam(r, "months")
	if fe != nil {
		RespondValidationError(w, []FieldError{*fe})
		return
	}

	report, err := h.reports.MonthlyReport(r.Context(), wallet, months)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to build monthly report", "wallet_id", wallet.ID, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, report)
}

func (h *HistoryHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	txID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	t, err := h.reports.GetTransaction(r.Context(), txID, userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toTransactionDTO(t))
}

func (h *HistoryHandler) TransactionEntries(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	txID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	entries, err := h.reports.TransactionEntries(r.Context(), txID, userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toLedgerEntryDTOs(entries))
}
