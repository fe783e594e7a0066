package handler

import (
	"log/slog"
	"net/http"

	"github.com/execguard/syncd/internal/api/middleware"
	"github.com/execguard/syncd/internal/distribution"
	"github.com/execguard/syncd/internal/domain"
)

// RuleDownloadHandler serves one rule page per request.
type RuleDownloadHandler struct {
	engine *distribution.Engine
	logger *slog.Logger
}

// NewRuleDownloadHandler creates a RuleDownloadHandler.
func NewRuleDownloadHandler(engine *distribution.Engine, logger *slog.Logger) *RuleDownloadHandler {
	return &RuleDownloadHandler{engine: engine, logger: logger}
}

// Handle processes POST /ruledownload/{host_id}.
func (h *RuleDownloadHandler) Handle(w http.ResponseWriter, r *http.Request) {
	host := middleware.HostFromContext(r.Context())
	if host == nil {
		handleError(w, domain.ErrForbidden)
		return
	}

	var req domain.RuleDownloadRequest
	if err := decodeJSONAllowEmpty(r, &req); err != nil {
		handleError(w, err)
		return
	}

	resp, err := h.engine.RulesForHost(r.Context(), host, req.Cursor)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "rule distribution failed",
			"host_id", host.ID, "error", err)
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
