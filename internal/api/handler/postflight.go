package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/execguard/syncd/internal/api/middleware"
	"github.com/execguard/syncd/internal/audit"
	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/storage"
)

// PostflightHandler closes a sync cycle: the host acknowledges that every
// rule fetched since its preceding preflight has been applied.
type PostflightHandler struct {
	store   storage.Storage
	emitter *audit.Emitter
	logger  *slog.Logger
}

// NewPostflightHandler creates a PostflightHandler.
func NewPostflightHandler(store storage.Storage, emitter *audit.Emitter, logger *slog.Logger) *PostflightHandler {
	return &PostflightHandler{store: store, emitter: emitter, logger: logger}
}

// Handle processes POST /postflight/{host_id}. The body is ignored; the rule
// sync watermark advances to the cycle's preflight time, never past it.
func (h *PostflightHandler) Handle(w http.ResponseWriter, r *http.Request) {
	host := middleware.HostFromContext(r.Context())
	if host == nil {
		handleError(w, domain.ErrForbidden)
		return
	}

	now := time.Now().UTC()
	host.RuleSyncAt = host.LastPreflightAt
	host.LastPostflightAt = &now
	host.UpdatedAt = now

	if err := h.store.UpdateHost(r.Context(), host); err != nil {
		h.logger.ErrorContext(r.Context(), "postflight host update failed",
			"host_id", host.ID, "error", err)
		handleError(w, err)
		return
	}

	h.emitter.Emit(r.Context(), audit.KindHost, map[string]any{
		"id":                 host.ID,
		"last_postflight_at": now,
		"rule_sync_at":       host.RuleSyncAt,
	})
	respondJSON(w, http.StatusOK, struct{}{})
}
