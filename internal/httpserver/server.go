package httpserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Youngger9765/career-ios-backend-sub001/internal/audit"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/catalog"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/credit"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/health"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/metrics"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/ratelimit"
)

// Server exposes REST endpoints for the credit ledger.
type Server struct {
	service *credit.Service
	auditor *audit.Auditor
	limiter *ratelimit.Limiter
	checker *health.Checker
	catalog *catalog.Catalog
	metrics *metrics.Collector

	// authToken, when non-empty, is required as a bearer token on all
	// billing routes.
	authToken string

	logger   *log.Logger
	logLevel string
}

// Config wires the server's collaborators.
type Config struct {
	Service   *credit.Service
	Auditor   *audit.Auditor
	Limiter   *ratelimit.Limiter
	Checker   *health.Checker
	Catalog   *catalog.Catalog
	Metrics   *metrics.Collector
	AuthToken string
	Logger    *log.Logger
	LogLevel  string
}

// New creates a Server.
func New(cfg Config) *Server {
	return &Server{
		service:   cfg.Service,
		auditor:   cfg.Auditor,
		limiter:   cfg.Limiter,
		checker:   cfg.Checker,
		catalog:   cfg.Catalog,
		metrics:   cfg.Metrics,
		authToken: cfg.AuthToken,
		logger:    cfg.Logger,
		logLevel:  cfg.LogLevel,
	}
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/health", s.handleHealth)

		api.Group(func(private chi.Router) {
			if s.authToken != "" {
				private.Use(s.authMiddleware)
			}
			private.Route("/credits", func(cr chi.Router) {
				cr.Post("/debit", s.handleDebit)
				cr.Post("/grant", s.handleGrant)
				cr.Post("/reconcile", s.handleReconcile)
				cr.Get("/balance", s.handleBalance)
				cr.Get("/history", s.handleHistory)
				cr.Get("/packages", s.handlePackages)
			})
		})
	})

	return r
}

// authMiddleware enforces the configured bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r.Header.Get("Authorization")) != s.authToken {
			s.respondError(w, http.StatusUnauthorized, errors.New("invalid or missing token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}

func (s *Server) debugf(format string, args ...any) {
	if s.logger != nil && strings.EqualFold(s.logLevel, "debug") {
		s.logger.Printf(format, args...)
	}
}
