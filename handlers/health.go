package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/you/alarmchain/internal/query"
)

// StatsProvider reports cache occupancy
type StatsProvider interface {
	Stats() query.Stats
}

// Pinger checks the upload ledger's database
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles GET /health
type HealthHandler struct {
	stats  StatsProvider
	ledger Pinger // nil when no ledger is configured
}

// NewHealthHandler creates a new handler. ledger may be nil.
func NewHealthHandler(stats StatsProvider, ledger Pinger) *HealthHandler {
	return &HealthHandler{stats: stats, ledger: ledger}
}

// HealthResponse is the JSON response for GET /health
type HealthResponse struct {
	Status       string    `json:"status"`
	CacheEntries int       `json:"cache_entries"`
	Ledger       string    `json:"ledger"`
	Timestamp    time.Time `json:"timestamp"`
	Error        string    `json:"error,omitempty"`
}

// GetHealth reports cache size and ledger connectivity.
// A configured ledger that cannot be reached makes the service unhealthy.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:       "ok",
		CacheEntries: h.stats.Stats().CacheEntries,
		Ledger:       "disabled",
		Timestamp:    time.Now().UTC(),
	}

	if h.ledger != nil {
		if err := h.ledger.Ping(ctx); err != nil {
			resp.Status = "error"
			resp.Ledger = "disconnected"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Ledger = "connected"
	}

	writeJSON(w, http.StatusOK, resp)
}
