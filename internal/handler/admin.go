package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
	"github.com/josh-kwaku/wallet-ledger/internal/service"
	"github.com/josh-kwaku/wallet-ledger/internal/service/reconciliation"
)

type reconciler interface {
	VerifyAccount(ctx context.Context, walletID uuid.UUID) (*reconciliation.AccountVerification, error)
	VerifyAll(ctx context.Context) (*reconciliation.Report, error)
	VerifySystemWide(ctx context.Context, currency domain.Currency) (*reconciliation.CurrencyVerification, error)
	VerifyAllCurrencies(ctx context.Context) (*reconciliation.SystemVerification, error)
	Reconcile(ctx context.Context, walletID uuid.UUID) (*reconciliation.Reconciliation, error)
}

type adminReports interface {
	GetTransaction(ctx context.Context, txID, ownerID uuid.UUID) (*domain.Transaction, error)
	SystemAccounts(ctx context.Context) ([]repository.SystemAccountTotals, error)
	ListUsers(ctx context.Context, limit, offset int) (*service.Page[repository.UserSummary], error)
	ListAllWallets(ctx context.Context, limit, offset int) (*service.Page[repository.WalletOverview], error)
	ListAllTransactions(ctx context.Context, limit, offset int) (*service.Page[domain.Transaction], error)
	SystemAnalytics(ctx context.Context) (*service.SystemAnalytics, error)
}

type adminUsers interface {
	UserDetails(ctx context.Context, id uuid.UUID) (*service.UserDetails, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) (*domain.User, error)
}

// AdminHandler serves the operator endpoints. Routes are mounted behind
// RequireAdmin, so nothing here checks ownership.
type AdminHandler struct {
	recon   reconciler
	reports adminReports
	users   adminUsers
}

func NewAdminHandler(recon reconciler, reports adminReports, users adminUsers) *AdminHandler {
	return &AdminHandler{recon: recon, reports: reports, users: users}
}

type userSummaryDTO struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	WalletCount int64     `json:"wallet_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type walletOverviewDTO struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	OwnerEmail string    `json:"owner_email"`
	Currency   string    `json:"currency"`
	Balance    string    `json:"balance"`
	DailyLimit string    `json:"daily_limit"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type userDetailsDTO struct {
	User        userDTO           `json:"user"`
	Status      string            `json:"status"`
	Wallets     []walletDTO       `json:"wallets"`
	WalletCount int               `json:"wallet_count"`
	Balances    map[string]string `json:"total_balance"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (r updateRoleRequest) Validate() []FieldError {
	if r.Role == "" {
		return []FieldError{{Field: "role", Message: "required"}}
	}
	if _, err := domain.ParseUserRole(r.Role); err != nil {
		return []FieldError{{Field: "role", Message: "must be user or admin"}}
	}
	return nil
}

func (h *AdminHandler) VerifyAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.recon.VerifyAll(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("balance verification failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, report)
}

func (h *AdminHandler) VerifyWallet(w http.ResponseWriter, r *http.Request) {
	walletID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	v, err := h.recon.VerifyAccount(r.Context(), walletID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, v)
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	walletID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	res, err := h.recon.Reconcile(r.Context(), walletID)
	if err != nil {
		logging.FromContext(r.Context()).Error("reconciliation failed", "wallet_id", walletID, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, res)
}

// VerifyLedger checks the double-entry totals. ?currency= narrows the check
// to one currency.
func (h *AdminHandler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	if c := r.URL.Query().Get("currency"); c != "" {
		v, err := h.recon.VerifySystemWide(r.Context(), domain.Currency(c))
		if err != nil {
			RespondDomainError(w, err)
			return
		}
		RespondSuccess(w, http.StatusOK, v)
		return
	}

	v, err := h.recon.VerifyAllCurrencies(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("ledger verification failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, v)
}

func (h *AdminHandler) SystemAccounts(w http.ResponseWriter, r *http.Request) {
	totals, err := h.reports.SystemAccounts(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load system accounts", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, totals)
}

func (h *AdminHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	t, err := h.reports.GetTransaction(r.Context(), txID, uuid.Nil)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toTransactionDTO(t))
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, fields := pageParams(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	page, err := h.reports.ListUsers(r.Context(), limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list users", "error", err)
		RespondDomainError(w, err)
		return
	}

	items := make([]userSummaryDTO, len(page.Items))
	for i, u := range page.Items {
		items[i] = userSummaryDTO{
			ID:          u.ID,
			Email:       u.Email,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			Role:        string(u.Role),
			Status:      string(u.Status),
			WalletCount: u.WalletCount,
			CreatedAt:   u.CreatedAt,
		}
	}
	RespondSuccess(w, http.StatusOK, pageDTO[userSummaryDTO]{Items: items, Total: page.Total, Limit: page.Limit, Offset: page.Offset})
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	d, err := h.users.UserDetails(r.Context(), userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	out := userDetailsDTO{
		User:        toUserDTO(d.User),
		Status:      string(d.User.Status),
		Wallets:     make([]walletDTO, len(d.Wallets)),
		WalletCount: d.WalletCount,
		Balances:    make(map[string]string, len(d.Balances)),
	}
	for i := range d.Wallets {
		out.Wallets[i] = toWalletDTO(&d.Wallets[i])
	}
	for c, b := range d.Balances {
		out.Balances[string(c)] = b.StringFixed(2)
	}
	RespondSuccess(w, http.StatusOK, out)
}

func (h *AdminHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	userID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	u, err := h.users.UpdateRole(r.Context(), userID, req.Role)
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to update role", "user_id", userID, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toUserDTO(u))
}

func (h *AdminHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	limit, offset, fields := pageParams(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	page, err := h.reports.ListAllWallets(r.Context(), limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list wallets", "error", err)
		RespondDomainError(w, err)
		return
	}

	items := make([]walletOverviewDTO, len(page.Items))
	for i, wo := range page.Items {
		items[i] = walletOverviewDTO{
			ID:         wo.ID,
			OwnerID:    wo.OwnerID,
			OwnerEmail: wo.OwnerEmail,
			Currency:   string(wo.Currency),
			Balance:    wo.Balance.StringFixed(2),
			DailyLimit: wo.DailyLimit.StringFixed(2),
			Active:     wo.Active,
			CreatedAt:  wo.CreatedAt,
		}
	}
	RespondSuccess(w, http.StatusOK, pageDTO[walletOverviewDTO]{Items: items, Total: page.Total, Limit: page.Limit, Offset: page.Offset})
}

func (h *AdminHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset, fields := pageParams(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	page, err := h.reports.ListAllTransactions(r.Context(), limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transactions", "error", err)
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

func (h *AdminHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.reports.SystemAnalytics(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load system analytics", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, a)
}
