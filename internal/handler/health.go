package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// Pinger is implemented by dependencies the health check probes, such as
// *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether the service can reach its database.
type HealthHandler struct {
	db        Pinger
	responder *Responder
	timeout   time.Duration
}

// NewHealthHandler creates a new HealthHandler. db may be nil.
func NewHealthHandler(db Pinger, responder *Responder) *HealthHandler {
	return &HealthHandler{db: db, responder: responder, timeout: 2 * time.Second}
}

// RegisterRoutes registers GET /health.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.responder.Error(w, r, domain.Unavailable(err, "health.ping", "The database is unreachable"))
			return
		}
	}
	h.responder.Results(w, http.StatusOK, map[string]string{"status": "ok"})
}
