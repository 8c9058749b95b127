package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
)

// LatestRates is the provider's response: units of each currency per one
// unit of Base.
type LatestRates struct {
	Base  domain.Currency            `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

type LiveSource struct {
	baseURL    string
	httpClient *http.Client
}

func NewLiveSource(baseURL string) *LiveSource {
	return &LiveSource{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *LiveSource) Fetch(ctx context.Context) (*LatestRates, error) {
	log := logging.FromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/latest?base=USD", nil)
	if err != nil {
		return nil, fmt.Errorf("Fetch: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Fetch: send: %w", err)
	}
	defer resp.Body.Close()

	log.Debug("rate provider response received",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("Fetch: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var latest LatestRates
	if err := json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		return nil, fmt.Errorf("Fetch: decode: %w", err)
	}
	return &latest, nil
}

type fetcher interface {
	Fetch(ctx context.Context) (*LatestRates, error)
}

// Refresher keeps a RateService current. Failed refreshes are logged and
// the previous table stays in use.
type Refresher struct {
	rates    *RateService
	source   fetcher
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewRefresher(rates *RateService, source fetcher, logger *slog.Logger, interval time.Duration) *Refresher {
	return &Refresher{
		rates:    rates,
		source:   source,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

func (r *Refresher) Start(ctx context.Context) {
	r.logger.Info("fx refresher started", "interval", r.interval)
	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("fx refresher stopped")
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	latest, err := r.source.Fetch(ctx)
	if err != nil {
		r.logger.Warn("fx rate fetch failed, keeping current rates", "error", err)
		return
	}
	if err := r.rates.Refresh(latest, r.now().UTC()); err != nil {
		r.logger.Warn("fx rate refresh rejected", "error", err)
		return
	}
	r.logger.Info("fx rates refreshed", "base", latest.Base)
}
