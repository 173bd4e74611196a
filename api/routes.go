package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/fixbuddy/internal/config"
	"github.com/garnizeh/fixbuddy/internal/metrics"
	"github.com/garnizeh/fixbuddy/pkg/repository"
)

// Deps are the collaborators the router wires into handlers. Runner may be
// nil, in which case the agent endpoint answers NOT_IMPLEMENTED.
type Deps struct {
	Users     repository.UserRepo
	Profiles  repository.ProfileRepo
	Diagnoses repository.DiagnosisRepo
	History   repository.HistoryRepo
	Runner    DiagnosisRunner
	Metrics   *metrics.Metrics
	Ping      func(ctx context.Context) error
}

func SetupRoutes(cfg *config.Config, version, buildTime string, d Deps) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(MetricsMiddleware(d.Metrics))

	systemHandler := &SystemHandler{Ping: d.Ping}
	authHandler := NewAuthHandler(d.Users, d.Profiles, cfg.JWTSecret, cfg.TokenDuration)
	agentHandler := NewAgentHandler(d.Runner)
	diagnosesHandler := NewDiagnosesHandler(d.Diagnoses)
	profileHandler := NewProfileHandler(d.Profiles, d.History)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods(http.MethodGet)
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/users", authHandler.Signup).Methods(http.MethodPost)
	r.HandleFunc("/api/login", authHandler.Login).Methods(http.MethodPost)

	// Protected routes
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	limiter := NewFixedWindowLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	agentRoute := protected.PathPrefix("/agent").Subrouter()
	agentRoute.Use(RateLimitMiddleware(limiter, d.Metrics))
	agentRoute.HandleFunc("", agentHandler.Diagnose).Methods(http.MethodPost)

	protected.HandleFunc("/diagnoses", diagnosesHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/diagnoses/{id}", diagnosesHandler.Get).Methods(http.MethodGet)
	protected.HandleFunc("/diagnoses/{id}", diagnosesHandler.Delete).Methods(http.MethodDelete)
	protected.HandleFunc("/profile", profileHandler.Get).Methods(http.MethodGet)
	protected.HandleFunc("/profile", profileHandler.Update).Methods(http.MethodPut)
	protected.HandleFunc("/history", profileHandler.History).Methods(http.MethodGet)

	return r
}
