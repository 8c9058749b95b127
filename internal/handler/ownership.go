package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-ledger/internal/auth"
	"github.com/josh-kwaku/wallet-ledger/internal/domain"
)

type ownedWalletGetter interface {
	GetOwnedWallet(ctx context.Context, walletID, ownerID uuid.UUID) (*domain.Wallet, error)
}

func callerID(r *http.Request) (uuid.UUID, *AppError) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, ErrMissingToken
	}
	return id, nil
}

// idFromPath parses a uuid path segment. A malformed id is reported as not
// found rather than as a bad request.
func idFromPath(r *http.Request, name string) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}
	return id, nil
}

// ownedWalletFromPath resolves {id} to a wallet the caller owns and writes
// the error response itself when it cannot. Wallets of other users look
// exactly like missing ones.
func ownedWalletFromPath(w http.ResponseWriter, r *http.Request, wallets ownedWalletGetter) (*domain.Wallet, bool) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return nil, false
	}
	walletID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return nil, false
	}

	wallet, err := wallets.GetOwnedWallet(r.Context(), walletID, userID)
	if err != nil {
		RespondDomainError(w, err)
		return nil, false
	}
	return wallet, true
}
