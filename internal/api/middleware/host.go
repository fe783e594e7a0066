package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/storage"
	"github.com/execguard/syncd/internal/validation"
)

type contextKey string

const hostContextKey contextKey = "host"

// RequireHost loads the host addressed by the request into the context. A
// host id with no record behind it is rejected with Forbidden; only preflight
// is allowed to see an unknown host.
func RequireHost(store storage.Storage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hostID := chi.URLParam(r, "host_id")
			if err := validation.ValidateHostID(hostID); err != nil {
				http.Error(w, `{"code":400,"message":"invalid host id"}`, http.StatusBadRequest)
				return
			}

			host, err := store.GetHost(r.Context(), hostID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					http.Error(w, `{"code":403,"message":"unknown host"}`, http.StatusForbidden)
					return
				}
				http.Error(w, `{"code":500,"message":"internal server error"}`, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), hostContextKey, host)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HostFromContext retrieves the host loaded by RequireHost.
func HostFromContext(ctx context.Context) *domain.Host {
	host, _ := ctx.Value(hostContextKey).(*domain.Host)
	return host
}
