package middleware

import (
	"net/http"

	"github.com/josh-kwaku/wallet-ledger/internal/handler"
	"github.com/josh-kwaku/wallet-ledger/internal/idempotency"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
)

// Idempotency validates an optional Idempotency-Key header on writes and
// hands it to the service layer through the context. The key is claimed
// inside the operation's own database transaction, not here.
func Idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(idempotency.Header)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !idempotency.ValidKey(key) {
			handler.RespondAppError(w, handler.ErrInvalidIdempotency, nil)
			return
		}

		ctx := idempotency.WithKey(r.Context(), key)
		ctx = logging.With(ctx, "idempotency_key", key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
