package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/gophstorage/internal/server/terminal"
	"github.com/iudanet/gophstorage/pkg/api"
)

// StatsProvider reports authority counters
type StatsProvider interface {
	Stats() terminal.Stats
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger  *slog.Logger
	stats   StatsProvider
	version string
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, stats StatsProvider, version string) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		stats:   stats,
		version: version,
	}
}

// Health обрабатывает GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.stats.Stats()
	sendJSON(h.logger, w, api.HealthResponse{
		Status:       "ok",
		Version:      h.version,
		Terminals:    st.Terminals,
		Subscribers:  st.Subscribers,
		Reservations: st.Reservations,
	}, http.StatusOK)
}
