package handler

import (
	"log/slog"
	"net/http"

	"github.com/execguard/syncd/internal/api/middleware"
	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/ingest"
)

// EventUploadHandler accepts telemetry batches and relays the ingest
// engine's bundle-upload solicitations.
type EventUploadHandler struct {
	engine *ingest.Engine
	logger *slog.Logger
}

// NewEventUploadHandler creates an EventUploadHandler.
func NewEventUploadHandler(engine *ingest.Engine, logger *slog.Logger) *EventUploadHandler {
	return &EventUploadHandler{engine: engine, logger: logger}
}

// Handle processes POST /eventupload/{host_id}.
func (h *EventUploadHandler) Handle(w http.ResponseWriter, r *http.Request) {
	host := middleware.HostFromContext(r.Context())
	if host == nil {
		handleError(w, domain.ErrForbidden)
		return
	}

	var req domain.EventUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}

	resp, err := h.engine.Process(r.Context(), host, req.Events)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "event ingestion failed",
			"host_id", host.ID, "events", len(req.Events), "error", err)
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
