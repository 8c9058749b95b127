package fx

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
)

type Source string

const (
	SourceStatic Source = "STATIC"
	SourceLive   Source = "LIVE"
)

type Conversion struct {
	SourceAmount    decimal.Decimal
	SourceCurrency  domain.Currency
	ConvertedAmount decimal.Decimal
	TargetCurrency  domain.Currency
	Rate            decimal.Decimal
}

type Snapshot struct {
	Source      Source                     `json:"source"`
	RefreshedAt *time.Time                 `json:"refreshed_at,omitempty"`
	Rates       map[string]decimal.Decimal `json:"rates"`
}

// RateService quotes conversion rates between supported currencies. It starts
// on the static table and switches to live rates after a successful Refresh.
type RateService struct {
	mu          sync.RWMutex
	rates       map[string]decimal.Decimal
	source      Source
	refreshedAt time.Time
}

func staticRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USD_EUR": decimal.RequireFromString("0.92"),
		"USD_GBP": decimal.RequireFromString("0.79"),
		"EUR_USD": decimal.RequireFromString("1.09"),
		"EUR_GBP": decimal.RequireFromString("0.86"),
		"GBP_USD": decimal.RequireFromString("1.27"),
		"GBP_EUR": decimal.RequireFromString("1.16"),
	}
}

func NewRateService() *RateService {
	return &RateService{
		rates:  staticRates(),
		source: SourceStatic,
	}
}

func pairKey(from, to domain.Currency) string {
	return string(from) + "_" + string(to)
}

func (s *RateService) Rate(_ context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if from == to && from.IsValid() {
		return decimal.NewFromInt(1), nil
	}

	s.mu.RLock()
	rate, ok := s.rates[pairKey(from, to)]
	s.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("Rate: %s/%s: %w", from, to, domain.ErrUnknownCurrencyPair)
	}
	return rate, nil
}

// Convert applies the current rate and rounds half-up to two places.
func (s *RateService) Convert(ctx context.Context, amount decimal.Decimal, from, to domain.Currency) (*Conversion, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("Convert: %w", domain.ErrInvalidAmount)
	}

	rate, err := s.Rate(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("Convert: %w", err)
	}

	return &Conversion{
		SourceAmount:    amount,
		SourceCurrency:  from,
		ConvertedAmount: amount.Mul(rate).Round(2),
		TargetCurrency:  to,
		Rate:            rate,
	}, nil
}

// Refresh replaces the rate table with cross rates derived from a base-quoted
// table. On error the current table is left untouched.
func (s *RateService) Refresh(latest *LatestRates, at time.Time) error {
	table, err := crossRates(latest)
	if err != nil {
		return fmt.Errorf("Refresh: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = table
	s.source = SourceLive
	s.refreshedAt = at
	return nil
}

func (s *RateService) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Source: s.source,
		Rates:  maps.Clone(s.rates),
	}
	if !s.refreshedAt.IsZero() {
		at := s.refreshedAt
		snap.RefreshedAt = &at
	}
	return snap
}

func crossRates(latest *LatestRates) (map[string]decimal.Decimal, error) {
	if latest == nil {
		return nil, fmt.Errorf("crossRates: no rates")
	}

	perBase := make(map[domain.Currency]decimal.Decimal, len(domain.AllCurrencies))
	for _, c := range domain.AllCurrencies {
		if c == latest.Base {
			perBase[c] = decimal.NewFromInt(1)
			continue
		}
		r, ok := latest.Rates[string(c)]
		if !ok || !r.IsPositive() {
			return nil, fmt.Errorf("crossRates: missing rate for %s", c)
		}
		perBase[c] = r
	}

	table := make(map[string]decimal.Decimal)
	for _, from := range domain.AllCurrencies {
		for _, to := range domain.AllCurrencies {
			if from == to {
				continue
			}
			table[pairKey(from, to)] = perBase[to].Div(perBase[from]).Round(6)
		}
	}
	return table, nil
}
