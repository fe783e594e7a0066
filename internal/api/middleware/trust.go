package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/execguard/syncd/internal/trust"
)

// Trust runs client trust verification before any sync logic. The configured
// mode decides whether a failed or errored verification rejects the request;
// fail-open failures are logged and let through.
func Trust(verifier trust.Verifier, mode trust.Mode, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mode == trust.ModeNone {
				next.ServeHTTP(w, r)
				return
			}

			hostID := chi.URLParam(r, "host_id")
			res := verifier.Verify(r.Context(), r, hostID)
			if res.Err != nil {
				logger.WarnContext(r.Context(), "trust verification did not pass",
					"host_id", hostID, "error", res.Err)
			}
			if trust.Decide(res, mode) == trust.Reject {
				http.Error(w, `{"code":403,"message":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
