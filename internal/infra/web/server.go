package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/infra/logging"
	"youtube-outlier-discovery/internal/infra/progress"
	"youtube-outlier-discovery/internal/infra/queue"
	"youtube-outlier-discovery/internal/usecase"
)

// Server exposes the run lifecycle and the queue admin surface over HTTP.
type Server struct {
	analysisUC *usecase.AnalysisUseCase
	queues     *queue.Manager
	broker     *progress.Broker
	apiKey     string
	log        *zerolog.Logger
}

func NewServer(
	analysisUC *usecase.AnalysisUseCase,
	queues *queue.Manager,
	broker *progress.Broker,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	compLog := logger.With().Str("component", "web").Logger()
	return &Server{
		analysisUC: analysisUC,
		queues:     queues,
		broker:     broker,
		apiKey:     apiKey,
		log:        &compLog,
	}
}

// Router builds the full route tree. Everything under /api/v1 sits behind
// the bearer-key middleware; health and metrics stay open for probes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(ownerContext)

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", runCreateHandler(s.analysisUC))
			r.Get("/", runListHandler(s.analysisUC))
			r.Get("/{id}", runGetHandler(s.analysisUC))
			r.Post("/{id}/cancel", runCancelHandler(s.analysisUC))
			r.Get("/{id}/events", runEventsHandler(s.analysisUC, s.broker, s.log))
		})

		r.Route("/queues", func(r chi.Router) {
			r.Get("/", queueListHandler(s.queues))
			r.Get("/{name}/jobs", jobListHandler(s.queues))
			r.Get("/{name}/jobs/{id}", jobGetHandler(s.queues))
			r.Post("/{name}/jobs/{id}/retry", jobRetryHandler(s.queues))
			r.Delete("/{name}/jobs/{id}", jobRemoveHandler(s.queues))
			r.Post("/{name}/pause", queuePauseHandler(s.queues))
			r.Post("/{name}/resume", queueResumeHandler(s.queues))
		})
	})

	return r
}

// authMiddleware provides simple Bearer token authentication for the API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ownerID identifies the caller for run scoping. A single shared key guards
// the API, so the owner travels in a header; absent means the default owner.
func ownerID(r *http.Request) string {
	if owner := r.Header.Get("X-Owner-ID"); owner != "" {
		return owner
	}
	return "default"
}

// ownerContext stamps the caller's owner id into the request context so
// downstream log lines carry it.
func ownerContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithOwnerID(r.Context(), ownerID(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
