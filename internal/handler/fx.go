package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/fx"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
)

type fxService interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to domain.Currency) (*fx.Conversion, error)
	Snapshot() fx.Snapshot
}

type FXHandler struct {
	fx fxService
}

func NewFXHandler(fxSvc fxService) *FXHandler {
	return &FXHandler{fx: fxSvc}
}

type fxRatesResponse struct {
	Source      string            `json:"source"`
	RefreshedAt *time.Time        `json:"refreshed_at,omitempty"`
	Rates       map[string]string `json:"rates"`
}

type fxConversionResponse struct {
	FromCurrency    string `json:"from_currency"`
	ToCurrency      string `json:"to_currency"`
	Amount          string `json:"amount"`
	ConvertedAmount string `json:"converted_amount"`
	Rate            string `json:"rate"`
	Timestamp       string `json:"timestamp"`
}

func (h *FXHandler) Rates(w http.ResponseWriter, r *http.Request) {
	snap := h.fx.Snapshot()
	rates := make(map[string]string, len(snap.Rates))
	for pair, rate := range snap.Rates {
		rates[pair] = rate.StringFixed(6)
	}
	RespondSuccess(w, http.StatusOK, fxRatesResponse{
		Source:      string(snap.Source),
		RefreshedAt: snap.RefreshedAt,
		Rates:       rates,
	})
}

// Convert quotes a conversion without moving money. amount defaults to 1.
func (h *FXHandler) Convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")

	fields := validateFXRateParams(from, to)
	amount := decimal.NewFromInt(1)
	if raw := q.Get("amount"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil || !parsed.IsPositive() {
			fields = append(fields, FieldError{Field: "amount", Message: "must be a positive number"})
		} else {
			amount = parsed
		}
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	conv, err := h.fx.Convert(r.Context(), amount, domain.Currency(from), domain.Currency(to))
	if err != nil {
		logging.FromContext(r.Context()).Warn("fx conversion failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, fxConversionResponse{
		FromCurrency:    string(conv.SourceCurrency),
		ToCurrency:      string(conv.TargetCurrency),
		Amount:          conv.SourceAmount.String(),
		ConvertedAmount: conv.ConvertedAmount.StringFixed(2),
		Rate:            conv.Rate.StringFixed(6),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

func validateFXRateParams(from, to string) []FieldError {
	var errs []FieldError

	if from == "" {
		errs = append(errs, FieldError{Field: "from", Message: "required"})
	} else if !domain.Currency(from).IsValid() {
		errs = append(errs, FieldError{Field: "from", Message: "must be USD, EUR, or GBP"})
	}

	if to == "" {
		errs = append(errs, FieldError{Field: "to", Message: "required"})
	} else if !domain.Currency(to).IsValid() {
		errs = append(errs, FieldError{Field: "to", Message: "must be USD, EUR, or GBP"})
	}

	return errs
}
