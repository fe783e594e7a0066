package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/execguard/syncd/internal/api/handler"
	"github.com/execguard/syncd/internal/api/middleware"
	"github.com/execguard/syncd/internal/audit"
	"github.com/execguard/syncd/internal/catalog"
	"github.com/execguard/syncd/internal/config"
	"github.com/execguard/syncd/internal/distribution"
	"github.com/execguard/syncd/internal/identity"
	"github.com/execguard/syncd/internal/ingest"
	"github.com/execguard/syncd/internal/metrics"
	"github.com/execguard/syncd/internal/storage"
	"github.com/execguard/syncd/internal/trust"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(
	store storage.Storage,
	sink audit.Sink,
	verifier trust.Verifier,
	m *metrics.Metrics,
	registry *prometheus.Registry,
	cfg *config.Config,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	// Health check (no trust verification required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	emitter := audit.NewEmitter(sink, logger)
	resolver := identity.NewResolver(store, cfg.Sync.UserEmailDomain, cfg.Sync.PlaceholderUser)
	cat := catalog.New(store)
	ingestEngine := ingest.New(store, cat, resolver, emitter, logger)
	distEngine := distribution.New(store, cfg.Sync.RuleBatchSize)

	preflight := handler.NewPreflightHandler(store, resolver, emitter, cfg.Sync, logger)
	eventUpload := handler.NewEventUploadHandler(ingestEngine, logger)
	ruleDownload := handler.NewRuleDownloadHandler(distEngine, logger)
	postflight := handler.NewPostflightHandler(store, emitter, logger)

	trustMode := trust.Mode(cfg.Trust.Mode)

	// Sync protocol routes (JSON, optionally compressed bodies)
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Decompress)

		r.Route("/preflight/{host_id}", func(r chi.Router) {
			r.Use(middleware.Phase(m, "preflight"))
			r.Use(middleware.Trust(verifier, trustMode, logger))
			r.Post("/", preflight.Handle)
		})
		r.Route("/eventupload/{host_id}", func(r chi.Router) {
			r.Use(middleware.Phase(m, "eventupload"))
			r.Use(middleware.Trust(verifier, trustMode, logger))
			r.Use(middleware.RequireHost(store))
			r.Post("/", eventUpload.Handle)
		})
		r.Route("/ruledownload/{host_id}", func(r chi.Router) {
			r.Use(middleware.Phase(m, "ruledownload"))
			r.Use(middleware.Trust(verifier, trustMode, logger))
			r.Use(middleware.RequireHost(store))
			r.Post("/", ruleDownload.Handle)
		})
		r.Route("/postflight/{host_id}", func(r chi.Router) {
			r.Use(middleware.Phase(m, "postflight"))
			r.Use(middleware.Trust(verifier, trustMode, logger))
			r.Use(middleware.RequireHost(store))
			r.Post("/", postflight.Handle)
		})
	})

	return r
}
