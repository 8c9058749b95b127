package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/wallet-ledger/internal/service"
)

type recipientFinder interface {
	LookupRecipient(ctx context.Context, callerID uuid.UUID, email string) (*service.Recipient, error)
}

type UserHandler struct {
	users recipientFinder
}

func NewUserHandler(users recipientFinder) *UserHandler {
	return &UserHandler{users: users}
}

type recipientWalletDTO struct {
	ID       uuid.UUID `json:"id"`
	Currency string    `json:"currency"`
	Symbol   string    `json:"symbol"`
}

type recipientDTO struct {
	FirstName string               `json:"first_name"`
	Email     string               `json:"email"`
	Wallets   []recipientWalletDTO `json:"wallets"`
}

// Lookup resolves ?email= to the recipient's name and active wallets so a
// sender can pick a target wallet.
func (h *UserHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		RespondValidationError(w, []FieldError{{Field: "email", Message: "required"}})
		return
	}

	rec, err := h.users.LookupRecipient(r.Context(), userID, email)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	out := recipientDTO{FirstName: rec.FirstName, Email: rec.Email, Wallets: make([]recipientWalletDTO, len(rec.Wallets))}
	for i, rw := range rec.Wallets {
		out.Wallets[i] = recipientWalletDTO{ID: rw.ID, Currency: string(rw.Currency), Symbol: rw.Symbol}
	}
	RespondSuccess(w, http.StatusOK, out)
}
