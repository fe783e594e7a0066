package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/execguard/syncd/internal/metrics"
)

// Phase counts every request of one handshake phase by response status.
func Phase(m *metrics.Metrics, phase string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				m.RecordRequest(phase, status)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
