package main

import (
	"net/http"

	"github.com/josh-kwaku/wallet-ledger/internal/auth"
	"github.com/josh-kwaku/wallet-ledger/internal/handler"
	"github.com/josh-kwaku/wallet-ledger/internal/middleware"
)

type routes struct {
	issuer    *auth.Issuer
	health    *handler.HealthHandler
	auth      *handler.AuthHandler
	users     *handler.UserHandler
	wallets   *handler.WalletHandler
	transfers *handler.TransferHandler
	history   *handler.HistoryHandler
	fx        *handler.FXHandler
	admin     *handler.AdminHandler
	metrics   http.Handler
}

func registerRoutes(mux *http.ServeMux, rt routes) {
	authed := middleware.Auth(rt.issuer)
	user := func(h http.HandlerFunc) http.Handler { return authed(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authed(middleware.RequireAdmin(h)) }

	mux.HandleFunc("GET /health", rt.health.Liveness)
	mux.HandleFunc("GET /ready", rt.health.Readiness)
	mux.Handle("GET /metrics", rt.metrics)
	mux.HandleFunc("GET /docs", handler.ServeDocs)
	mux.HandleFunc("GET /docs/openapi.yaml", handler.ServeSpec)

	mux.HandleFunc("POST /api/v1/auth/register", rt.auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login", rt.auth.Login)
	mux.Handle("GET /api/v1/me", user(rt.auth.Me))
	mux.Handle("GET /api/v1/users/lookup", user(rt.users.Lookup))

	mux.Handle("GET /api/v1/wallets", user(rt.wallets.List))
	mux.Handle("POST /api/v1/wallets", user(rt.wallets.Create))
	mux.Handle("GET /api/v1/wallets/{id}", user(rt.wallets.Get))
	mux.Handle("PATCH /api/v1/wallets/{id}/daily-limit", user(rt.wallets.UpdateDailyLimit))
	mux.Handle("POST /api/v1/wallets/{id}/topup", user(rt.transfers.TopUp))
	mux.Handle("POST /api/v1/wallets/{id}/withdraw", user(rt.transfers.Withdraw))
	mux.Handle("GET /api/v1/wallets/{id}/transactions", user(rt.history.Transactions))
	mux.Handle("GET /api/v1/wallets/{id}/ledger", user(rt.history.LedgerEntries))
	mux.Handle("GET /api/v1/wallets/{id}/analytics", user(rt.history.Analytics))
	mux.Handle("GET /api/v1/wallets/{id}/monthly-report", user(rt.history.MonthlyReport))

	mux.Handle("POST /api/v1/transfers", user(rt.transfers.Transfer))
	mux.Handle("GET /api/v1/transactions/{id}", user(rt.history.GetTransaction))
	mux.Handle("GET /api/v1/transactions/{id}/entries", user(rt.history.TransactionEntries))

	mux.Handle("GET /api/v1/fx/rates", user(rt.fx.Rates))
	mux.Handle("GET /api/v1/fx/convert", user(rt.fx.Convert))

	mux.Handle("GET /api/v1/admin/verify", admin(rt.admin.VerifyAll))
	mux.Handle("GET /api/v1/admin/wallets/{id}/verify", admin(rt.admin.VerifyWallet))
	mux.Handle("POST /api/v1/admin/wallets/{id}/reconcile", admin(rt.admin.Reconcile))
	mux.Handle("GET /api/v1/admin/ledger/verify", admin(rt.admin.VerifyLedger))
	mux.Handle("GET /api/v1/admin/system-accounts", admin(rt.admin.SystemAccounts))
	mux.Handle("GET /api/v1/admin/transactions", admin(rt.admin.ListTransactions))
	mux.Handle("GET /api/v1/admin/transactions/{id}", admin(rt.admin.GetTransaction))
	mux.Handle("GET /api/v1/admin/wallets", admin(rt.admin.ListWallets))
	mux.Handle("GET /api/v1/admin/users", admin(rt.admin.ListUsers))
	mux.Handle("GET /api/v1/admin/users/{id}", admin(rt.admin.GetUser))
	mux.Handle("PATCH /api/v1/admin/users/{id}/role", admin(rt.admin.UpdateUserRole))
	mux.Handle("GET /api/v1/admin/analytics", admin(rt.admin.Analytics))
}
