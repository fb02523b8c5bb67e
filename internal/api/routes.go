package api

import (
	"net/http"

	"xivtracker/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return !isHealthPath(r.URL.Path) && r.URL.Path != "/metrics"
			}),
		))
	}
}

// WithRateLimiter adds inbound rate limiting middleware to the router.
// Health endpoints are exempt.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(r *mux.Router) {
		r.Use(skipHealth(middleware))
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	router.Use(requestIDMiddleware)
	router.Use(recoveryMiddleware(handlers.logger))
	router.Use(loggingMiddleware(handlers.logger))

	if config.Server.CORS.Enabled {
		router.Use(corsMiddleware(config.Server.CORS))
	}

	for _, opt := range opts {
		opt(router)
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	router.HandleFunc("/api/v1/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/characters", handlers.ListCharacters).Methods("GET")
	api.HandleFunc("/characters/{id}", handlers.GetCharacter).Methods("GET")
	api.HandleFunc("/characters/{id}", handlers.DeleteCharacter).Methods("DELETE")
	api.HandleFunc("/characters/{id}/sync", handlers.SyncCharacter).Methods("POST")
	api.HandleFunc("/characters/{id}/jobs/{job_id}", handlers.RecordJob).Methods("PUT")
	api.HandleFunc("/characters/{id}/quests", handlers.RecordQuest).Methods("POST")
	api.HandleFunc("/characters/{id}/achievements", handlers.RecordAchievement).Methods("POST")
	api.HandleFunc("/characters/{id}/achievements", handlers.ListAchievements).Methods("GET")
	api.HandleFunc("/search", handlers.SearchCharacters).Methods("GET")
	api.HandleFunc("/ratelimit", handlers.RateLimitStatus).Methods("GET")

	api.PathPrefix("").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("OPTIONS")

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusMethodNotAllowed,
		models.NewErrorResponse("Method not allowed", models.ErrorCodeInvalidRequest))
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusNotFound,
		models.NewErrorResponse("Route not found", models.ErrorCodeNotFound))
}
