// Package server wires the access-control gates, handlers, and middleware
// into one HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/tixgate/tixgate/internal/audit"
	"github.com/tixgate/tixgate/internal/captcha"
	"github.com/tixgate/tixgate/internal/config"
	"github.com/tixgate/tixgate/internal/handler"
	"github.com/tixgate/tixgate/internal/metrics"
	"github.com/tixgate/tixgate/internal/server/middleware"
	"github.com/tixgate/tixgate/internal/service"
	"github.com/tixgate/tixgate/internal/signedurl"
	"github.com/tixgate/tixgate/internal/signing"
)

// Server is the top-level HTTP server. It owns the chi router, the config
// store, and every gate constructed from the injected secrets.
type Server struct {
	cfg      *config.YAMLConfig
	router   chi.Router
	store    *config.Store
	keys     *service.KeyService
	auth     *service.AuthService
	signer   *signedurl.Signer
	verifier *captcha.Verifier
	metrics  *metrics.Metrics
	recorder *audit.Recorder
	linkTTL  time.Duration
	instance string

	httpServer *http.Server
	logger     *slog.Logger
}

// New constructs a Server from validated configuration. All secrets are
// injected here, at construction; nothing reads them from global state
// later. Construction fails when strict mode is configured with missing
// secrets or when a duration field does not parse.
func New(cfg *config.YAMLConfig, store *config.Store, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	verifier, err := captcha.New(cfg.Captcha, cfg.Signing.Mode, logger)
	if err != nil {
		return nil, err
	}

	linkTTL := signedurl.DefaultTTL
	if cfg.Uploads.LinkTTL != "" {
		linkTTL, err = time.ParseDuration(cfg.Uploads.LinkTTL)
		if err != nil {
			return nil, fmt.Errorf("parse uploads.link_ttl: %w", err)
		}
	}

	instance, err := instanceID(store)
	if err != nil {
		return nil, fmt.Errorf("resolve instance id: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		instance: instance,
		store:    store,
		keys:     service.NewKeyService(store, logger),
		auth:     service.NewAuthService(cfg.Auth.JWTSecret),
		signer:   signedurl.New([]byte(cfg.Signing.UploadSecret)),
		verifier: verifier,
		metrics:  metrics.New(),
		recorder: audit.New(store, cfg.Audit.SinkURL, logger),
		linkTTL:  linkTTL,
		logger:   logger,
	}
	s.setupRouter()
	return s, nil
}

// instanceID returns the stable identifier for this deployment, minting
// and persisting one on first start. It survives restarts so audit
// events and metrics from one installation can be correlated.
func instanceID(store *config.Store) (string, error) {
	ctx := context.Background()
	id, err := store.GetSetting(ctx, "instance_id")
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, config.ErrNotFound) {
		return "", err
	}
	id = uuid.NewString()
	if err := store.SetSetting(ctx, "instance_id", id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORS.Origins,
		AllowedMethods:   s.cfg.Server.CORS.Methods,
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.cfg.Auth.APIKeyHeader, "X-Captcha-Token"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.Server.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(s.cfg.Server.RateLimitPerMin))
	}

	// --- Probes and metrics (no auth) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", s.metrics.Handler())

	// --- Protected file serving ---
	// Files inside a protected segment require a valid signed link; the
	// gate passes everything else straight to the file server. In
	// permissive mode with no upload secret the gate is skipped entirely
	// and every file is public.
	fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.Uploads.Dir)))
	if s.cfg.Signing.UploadSecret == "" {
		s.logger.Warn("upload signing secret not configured, serving all uploads unsigned")
		r.Handle("/uploads/*", fileServer)
	} else {
		gate := middleware.SignedURLGate(s.signer, s.cfg.Uploads.ProtectedSegments, "/uploads", s.metrics, s.recorder)
		r.With(gate).Handle("/uploads/*", fileServer)
	}

	// --- API routes ---
	formsHandler := handler.NewFormsHandler(s.logger)

	r.Route("/api/v1", func(r chi.Router) {

		// Public form intake sits outside key auth; bots are filtered by
		// the captcha gate instead.
		r.Group(func(r chi.Router) {
			r.Use(middleware.BodyLimit(middleware.ClassStandard, s.cfg.Limits.Standard, s.metrics, s.recorder))
			r.With(middleware.CaptchaGate(s.verifier, true, s.metrics, s.recorder)).
				Post("/forms/contact", formsHandler.Contact)
			r.With(middleware.CaptchaGate(s.verifier, false, s.metrics, s.recorder)).
				Post("/feedback", formsHandler.Feedback)
		})

		// Everything else requires an API key or an admin bearer token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.keys, s.auth, s.cfg.Auth.APIKeyHeader, s.metrics, s.recorder))
			if s.cfg.Auth.KeyRateLimitMin > 0 {
				r.Use(middleware.RateLimitByHeader(s.cfg.Auth.APIKeyHeader, s.cfg.Auth.KeyRateLimitMin))
			}

			uploadsHandler := handler.NewUploadsHandler(s.signer, s.linkTTL, "/uploads", s.cfg.Uploads.ProtectedSegments)
			stateHandler := handler.NewStateHandler(signing.NewCodec([]byte(s.cfg.Signing.StateSecret)))

			r.Group(func(r chi.Router) {
				r.Use(middleware.BodyLimit(middleware.ClassStandard, s.cfg.Limits.Standard, s.metrics, s.recorder))
				r.Post("/uploads/sign", uploadsHandler.SignURL)
				r.Post("/state/issue", stateHandler.IssueState)
				r.Post("/state/verify", stateHandler.VerifyState)
			})

			// Key management requires the admin bearer token.
			r.Route("/system", func(r chi.Router) {
				r.Use(middleware.RequireAdmin())
				r.Use(middleware.BodyLimit(middleware.ClassAuth, s.cfg.Limits.Auth, s.metrics, s.recorder))

				sysHandler := handler.NewSystemHandler(s.keys, s.store)
				r.Get("/api-key", sysHandler.ListAPIKeys)
				r.Post("/api-key", sysHandler.CreateAPIKey)
				r.Delete("/api-key/{keyId}", sysHandler.RevokeAPIKey)
				r.Get("/security-event", sysHandler.ListSecurityEvents)
			})
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","instance":%q}`, s.instance)
}

// handleReadyz is a readiness probe. It fails when the key/audit store is
// unreachable, since every gate that persists anything depends on it.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded","checks":{"store":"unreachable"}}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","checks":{"store":"ok"}}`))
}

// ListenAndServe starts the HTTP server and blocks until SIGINT or
// SIGTERM, then drains in-flight requests before returning.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "mode", s.cfg.Signing.Mode, "instance", s.instance)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownTimeout := 30 * time.Second
	if s.cfg.Server.ShutdownTimeout != "" {
		if d, err := time.ParseDuration(s.cfg.Server.ShutdownTimeout); err == nil {
			shutdownTimeout = d
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
