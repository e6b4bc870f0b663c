package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"goalpact/internal/auth"
	applog "goalpact/internal/log"
	"goalpact/internal/metrics"
	"goalpact/internal/middleware/ratelimit"
	"goalpact/internal/middleware/security"
	"goalpact/internal/middleware/trace"
	"goalpact/internal/services"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API needs.
type Deps struct {
	Controller     *services.Controller
	Groups         *services.GroupService
	Store          pinger
	Auth           auth.Authenticator
	Logger         *applog.Logger
	RateLimit      ratelimit.Config
	TrustedProxies []string
	SecureCookies  bool
}

type Server struct {
	http.Server
	controller    *services.Controller
	groups        *services.GroupService
	store         pinger
	limiter       *ratelimit.Limiter
	detector      *security.Detector
	secureCookies bool
	shutdownOnce  sync.Once
}

func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		controller:    deps.Controller,
		groups:        deps.Groups,
		store:         deps.Store,
		limiter:       ratelimit.NewLimiter(deps.RateLimit),
		detector:      security.NewDetector(),
		secureCookies: deps.SecureCookies,
	}

	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}

	tracer := trace.NewMiddleware(logger.WithComponent(applog.ComponentHTTP), s.detector.ExtractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	r := chi.NewRouter()
	r.Use(tracer.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(headers.Middleware)
	r.Use(s.detector.Middleware)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", metrics.HandlerWithEdgeStats(s.edgeStats))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP))
		r.Use(auth.Require(deps.Auth))

		r.Get("/dashboard", s.handleDashboard)
		r.Post("/goals", s.handleCreateGoal)
		r.Post("/goals/{id}/complete", s.handleCompleteGoal)
		r.Post("/groups", s.handleCreateGroup)
		r.Post("/groups/join", s.handleJoinGroup)
		r.Get("/groups/current/credits", s.handleCredits)
		r.Get("/groups/{id}", s.handleGroupDetail)
		r.Put("/profile", s.handleUpsertProfile)
		r.Get("/notifications", s.handleNotifications)
		r.Post("/session/signout", s.handleSignOut)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown drains connections and stops the limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(s.limiter.Stop)
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, "store unavailable").Write(w)
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) edgeStats() metrics.EdgeStats {
	limits := s.limiter.GetMetrics()
	return metrics.EdgeStats{
		RateLimitedRequests: limits.TotalHits,
		RateLimitClients:    limits.ClientCount,
		SuspiciousRequests:  s.detector.GetMetrics().SuspiciousRequests,
	}
}
