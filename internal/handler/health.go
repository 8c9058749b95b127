package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/josh-kwaku/wallet-ledger/internal/logging"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db      *sql.DB
	version string
	checks  map[string]pinger
}

// NewHealthHandler always checks the database. Extra dependencies such as
// the event stream are registered with WithCheck.
func NewHealthHandler(db *sql.DB, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version, checks: map[string]pinger{}}
}

func (h *HealthHandler) WithCheck(name string, p pinger) *HealthHandler {
	h.checks[name] = p
	return h
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	log := logging.FromContext(ctx)

	httpStatus := http.StatusOK
	results := map[string]string{"database": "ok"}

	if err := h.db.PingContext(ctx); err != nil {
		log.Warn("readiness check failed: database unreachable", "error", err)
		results["database"] = "down"
		httpStatus = http.StatusServiceUnavailable
	}
	for name, p := range h.checks {
		results[name] = "ok"
		if err := p.Ping(ctx); err != nil {
			log.Warn("readiness check failed", "check", name, "error", err)
			results[name] = "down"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    results,
	})
}
