package main

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/wallet-ledger/internal/logging"
)

// Serves a USD-based rate table with a small random drift so that refreshes
// are visible in /api/v1/fx/rates.
func main() {
	logging.Init("mock-rates", "info", os.Getenv("APP_ENV"))

	base := map[string]decimal.Decimal{
		"EUR": decimal.RequireFromString("0.92"),
		"GBP": decimal.RequireFromString("0.79"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /latest", func(w http.ResponseWriter, r *http.Request) {
		if b := r.URL.Query().Get("base"); b != "" && b != "USD" {
			http.Error(w, `{"error":"only USD base is supported"}`, http.StatusBadRequest)
			return
		}
		rates := make(map[string]decimal.Decimal, len(base))
		for cur, rate := range base {
			drift := decimal.NewFromFloat(1 + (rand.Float64()-0.5)/100)
			rates[cur] = rate.Mul(drift).Round(6)
		}
		writeJSON(w, map[string]any{"base": "USD", "rates": rates})
	})

	addr := ":8081"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	slog.Info("mock rates provider started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
