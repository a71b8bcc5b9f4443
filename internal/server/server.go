package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jalaprana/site/internal/config"
	"github.com/jalaprana/site/internal/contact"
	"github.com/jalaprana/site/internal/emailtemplates"
	"github.com/jalaprana/site/internal/httputil"
	"github.com/jalaprana/site/internal/phone"
)

// Server is the HTTP server behind the Jalaprana site.
type Server struct {
	cfg       *config.Config
	router    *chi.Mux
	http      *http.Server
	logger    *slog.Logger
	registry  *phone.Registry
	contact   *contact.Service // nil when the contact form is disabled
	contactRL *RateLimiter     // nil when contact.rate_limit is 0
	logBuffer *LogBuffer       // nil when not using buffered logging
	startTime time.Time

	contactSubmitted atomic.Int64
	contactRejected  atomic.Int64
}

// New creates a new Server with middleware and routes configured.
// contactSvc may be nil, in which case /api/contact is not mounted; templates
// may be nil, in which case the admin template routes are not mounted.
func New(cfg *config.Config, logger *slog.Logger, contactSvc *contact.Service, templates *emailtemplates.Service) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))
	r.Use(ipAllowList(cfg.Access.AllowedIPs, cfg.Access.AllowLocal, logger))

	s := &Server{
		cfg:       cfg,
		router:    r,
		logger:    logger,
		registry:  phone.DefaultRegistry(),
		contact:   contactSvc,
		startTime: time.Now(),
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/phone/countries", s.handleCountries)

		// Admin routes: bearer-token gated, mounted only when admin.token is set.
		if cfg.Admin.Token != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdminToken)
				r.Get("/logs", s.handleAdminLogs)
				r.Get("/stats", s.handleAdminStats)
				if templates != nil {
					r.Route("/email-templates", func(r chi.Router) {
						mountEmailTemplateAdmin(r, templates)
					})
				}
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))

			r.Post("/phone/format", s.handleFormat)
			r.Post("/phone/validate", s.handleValidate)
			r.Post("/phone/input", s.handleInput)

			if contactSvc != nil {
				r.Group(func(r chi.Router) {
					if limit := cfg.Contact.RateLimit; limit > 0 {
						s.contactRL = NewRateLimiter(limit, time.Minute)
						r.Use(s.contactRL.Middleware)
					}
					r.Post("/contact", s.handleContact)
				})
			} else {
				logger.Warn("contact service is nil, skipping contact route")
			}
		})
	})

	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down.
func (s *Server) Start() error {
	s.http = s.newHTTPServer()

	s.logger.Info("server starting", "address", s.cfg.Address())
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartWithReady is Start, closing ready once the listener is bound.
func (s *Server) StartWithReady(ready chan<- struct{}) error {
	s.http = s.newHTTPServer()

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.logger.Info("server starting", "address", ln.Addr().String())
	close(ready)

	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Shutdown gracefully stops the server, waiting at most
// server.shutdown_timeout seconds for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := time.Duration(s.cfg.Server.ShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("shutting down server", "timeout", timeout)
	if s.contactRL != nil {
		s.contactRL.Stop()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": int(time.Since(s.startTime).Seconds()),
	})
}
