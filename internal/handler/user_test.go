package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
	"github.com/josh-kwaku/wallet-ledger/internal/service"
)

type stubRecipients struct {
	caller uuid.UUID
	email  string
	rec    *service.Recipient
}

func (s *stubRecipients) LookupRecipient(_ context.Context, callerID uuid.UUID, email string) (*service.Recipient, error) {
	s.caller, s.email = callerID, email
	if email == "me@example.com" {
		return nil, fmt.Errorf("LookupRecipient: own email: %w", domain.ErrInvalidRequest)
	}
	if s.rec == nil {
		return nil, fmt.Errorf("LookupRecipient: %w", domain.ErrNotFound)
	}
	return s.rec, nil
}

func TestUserLookup(t *testing.T) {
	caller := uuid.New()
	eurWallet := uuid.New()
	found := &service.Recipient{
		FirstName: "Bob",
		Email:     "bob@example.com",
		Wallets:   []service.RecipientWallet{{ID: eurWallet, Currency: domain.CurrencyEUR, Symbol: "€"}},
	}

	tests := []struct {
		name       string
		email      string
		rec        *service.Recipient
		wantStatus int
		wantCode   string
	}{
		{name: "known recipient", email: "bob@example.com", rec: found, wantStatus: http.StatusOK},
		{name: "own email", email: "me@example.com", rec: found, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "unknown email", email: "nobody@example.com", wantStatus: http.StatusNotFound, wantCode: "RESOURCE_NOT_FOUND"},
		{name: "missing email", wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			users := &stubRecipients{rec: tc.rec}
			h := NewUserHandler(users)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/lookup?email="+url.QueryEscape(tc.email), nil)
			req = withCaller(req, caller)
			rr := httptest.NewRecorder()

			h.Lookup(rr, req)

			require.Equal(t, tc.wantStatus, rr.Code)
			resp := decode(t, rr)
			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}

			assert.Equal(t, caller, users.caller)
			data := resp.Data.(map[string]any)
			assert.Equal(t, "Bob", data["first_name"])
			wallets := data["wallets"].([]any)
			require.Len(t, wallets, 1)
			w := wallets[0].(map[string]any)
			assert.Equal(t, eurWallet.String(), w["id"])
			assert.Equal(t, "EUR", w["currency"])
			assert.Equal(t, "€", w["symbol"])
		})
	}
}

type stubAdminReports struct {
	limit, offset int
}

func (s *stubAdminReports) GetTransaction(context.Context, uuid.UUID, uuid.UUID) (*domain.Transaction, error) {
	return nil, domain.ErrNotFound
}

func (s *stubAdminReports) SystemAccounts(context.Context) ([]repository.SystemAccountTotals, error) {
	return []repository.SystemAccountTotals{}, nil
}

func (s *stubAdminReports) ListUsers(_ context.Context, limit, offset int) (*service.Page[repository.UserSummary], error) {
	s.limit, s.offset = limit, offset
	return &service.Page[repository.UserSummary]{
		Items: []repository.UserSummary{{
			ID:          uuid.New(),
			Email:       "alice@example.com",
			Role:        domain.UserRoleUser,
			Status:      domain.UserStatusActive,
			WalletCount: 2,
		}},
		Total:  41,
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (s *stubAdminReports) ListAllWallets(_ context.Context, limit, offset int) (*service.Page[repository.WalletOverview], error) {
	return &service.Page[repository.WalletOverview]{
		Items: []repository.WalletOverview{{
			ID:         uuid.New(),
			OwnerEmail: "alice@example.com",
			Currency:   domain.CurrencyGBP,
			Balance:    decimal.RequireFromString("12.5"),
			DailyLimit: domain.DefaultDailyLimit,
			Active:     true,
		}},
		Total:  1,
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (s *stubAdminReports) ListAllTransactions(_ context.Context, limit, offset int) (*service.Page[domain.Transaction], error) {
	t := domain.NewTransaction(domain.TransactionTypeTopUp, decimal.RequireFromString("5"), domain.CurrencyUSD, "Top-up", time.Now())
	return &service.Page[domain.Transaction]{Items: []domain.Transaction{*t}, Total: 1, Limit: limit, Offset: offset}, nil
}

func (s *stubAdminReports) SystemAnalytics(context.Context) (*service.SystemAnalytics, error) {
	return &service.SystemAnalytics{
		SystemStats: repository.SystemStats{TotalUsers: 3, ActiveUsers: 2, RecentTransactions: 7},
		GeneratedAt: time.Now().UTC(),
	}, nil
}

type stubAdminUsers struct {
	details *service.UserDetails
	role    string
}

func (s *stubAdminUsers) UserDetails(_ context.Context, id uuid.UUID) (*service.UserDetails, error) {
	if s.details == nil || s.details.User.ID != id {
		return nil, fmt.Errorf("UserDetails: %w", domain.ErrNotFound)
	}
	return s.details, nil
}

func (s *stubAdminUsers) UpdateRole(_ context.Context, id uuid.UUID, role string) (*domain.User, error) {
	s.role = role
	return &domain.User{ID: id, Email: "alice@example.com", Role: domain.UserRole(role), Status: domain.UserStatusActive}, nil
}

func TestAdminListUsers_PassesPaging(t *testing.T) {
	reports := &stubAdminReports{}
	h := NewAdminHandler(nil, reports, &stubAdminUsers{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users?limit=10&offset=20", nil)
	rr := httptest.NewRecorder()
	h.ListUsers(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 10, reports.limit)
	assert.Equal(t, 20, reports.offset)

	data := decode(t, rr).Data.(map[string]any)
	assert.EqualValues(t, 41, data["total"])
	items := data["items"].([]any)
	require.Len(t, items, 1)
	assert.EqualValues(t, 2, items[0].(map[string]any)["wallet_count"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/users?limit=-1", nil)
	rr = httptest.NewRecorder()
	h.ListUsers(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminListWallets_FormatsAmounts(t *testing.T) {
	h := NewAdminHandler(nil, &stubAdminReports{}, &stubAdminUsers{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/wallets", nil)
	rr := httptest.NewRecorder()
	h.ListWallets(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	items := decode(t, rr).Data.(map[string]any)["items"].([]any)
	require.Len(t, items, 1)
	w := items[0].(map[string]any)
	assert.Equal(t, "12.50", w["balance"])
	assert.Equal(t, "GBP", w["currency"])
	assert.Equal(t, "alice@example.com", w["owner_email"])
}

func TestAdminListTransactionsAndAnalytics(t *testing.T) {
	h := NewAdminHandler(nil, &stubAdminReports{}, &stubAdminUsers{})

	rr := httptest.NewRecorder()
	h.ListTransactions(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/transactions", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	items := decode(t, rr).Data.(map[string]any)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "5.00", items[0].(map[string]any)["amount"])

	rr = httptest.NewRecorder()
	h.Analytics(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/analytics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	data := decode(t, rr).Data.(map[string]any)
	assert.EqualValues(t, 3, data["total_users"])
	assert.EqualValues(t, 7, data["recent_transactions"])
	assert.Contains(t, data, "generated_at")
}

func TestAdminGetUser(t *testing.T) {
	u := &domain.User{ID: uuid.New(), Email: "alice@example.com", Role: domain.UserRoleUser, Status: domain.UserStatusSuspended}
	wallets := &stubWallets{}
	usd := wallets.add(u.ID, domain.CurrencyUSD)
	users := &stubAdminUsers{details: &service.UserDetails{
		User:        u,
		Wallets:     []domain.Wallet{*usd},
		WalletCount: 1,
		Balances:    map[domain.Currency]decimal.Decimal{domain.CurrencyUSD: usd.Balance},
	}}
	h := NewAdminHandler(nil, &stubAdminReports{}, users)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users/x", nil)
	req.SetPathValue("id", u.ID.String())
	rr := httptest.NewRecorder()
	h.GetUser(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	data := decode(t, rr).Data.(map[string]any)
	assert.Equal(t, "suspended", data["status"])
	assert.EqualValues(t, 1, data["wallet_count"])
	assert.Equal(t, map[string]any{"USD": "100.00"}, data["total_balance"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/users/x", nil)
	req.SetPathValue("id", uuid.NewString())
	rr = httptest.NewRecorder()
	h.GetUser(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminUpdateUserRole(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantRole   string
	}{
		{name: "promote", body: `{"role":"admin"}`, wantStatus: http.StatusOK, wantRole: "admin"},
		{name: "unknown role", body: `{"role":"root"}`, wantStatus: http.StatusBadRequest},
		{name: "missing role", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			users := &stubAdminUsers{}
			h := NewAdminHandler(nil, &stubAdminReports{}, users)

			req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/users/x/role", strings.NewReader(tc.body))
			req.SetPathValue("id", uuid.NewString())
			rr := httptest.NewRecorder()
			h.UpdateUserRole(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, tc.wantRole, users.role)
		})
	}
}
