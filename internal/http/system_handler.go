package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/shiftline/internal/application"
	"github.com/example/shiftline/internal/logging"
)

// PresenceSource lists online principals of a company.
type PresenceSource interface {
	Online(companyID string) []application.Principal
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type SystemHandler struct {
	presence  PresenceSource
	db        Pinger
	responder responder
	logger    *slog.Logger
}

func NewSystemHandler(presence PresenceSource, db Pinger, logger *slog.Logger) *SystemHandler {
	base := logging.OrDefault(logger)
	return &SystemHandler{presence: presence, db: db, responder: newResponder(base), logger: base}
}

// Presence handles GET /presence.
func (h *SystemHandler) Presence(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.presence == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	online := h.presence.Online(principal.CompanyID)
	out := make([]principalDTO, 0, len(online))
	for _, p := range online {
		out = append(out, toPrincipalDTO(p))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, presenceResponse{Online: out})
}

// Healthz handles GET /healthz.
func (h *SystemHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			handlerLogger(r.Context(), h.logger, "SystemHandler", "Healthz").
				ErrorContext(r.Context(), "database ping failed", "error", err)
			h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
}

type presenceResponse struct {
	Online []principalDTO `json:"online"`
}

type healthResponse struct {
	Status string `json:"status"`
}
