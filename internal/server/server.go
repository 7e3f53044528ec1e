// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: the database, services, handlers, the slide
// relay and middleware are all wired here, and nowhere else.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/tomato-slides/internal/auth"
	"github.com/sakif/tomato-slides/internal/executor"
	"github.com/sakif/tomato-slides/internal/handler"
	"github.com/sakif/tomato-slides/internal/language"
	"github.com/sakif/tomato-slides/internal/metrics"
	"github.com/sakif/tomato-slides/internal/middleware"
	sqliteRepo "github.com/sakif/tomato-slides/internal/repository/sqlite"
	"github.com/sakif/tomato-slides/internal/service"
	"github.com/sakif/tomato-slides/internal/slides"
)

// Config holds server configuration.
type Config struct {
	Port            int
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	DBPath         string
	SlidesDir      string
	UploadDir      string
	MaxUploadBytes int64

	// RateLimitRPS of 0 disables the per-IP limit on /api/run.
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []string
}

// Dependencies are the parts built outside the server.
type Dependencies struct {
	Executor  executor.Executor
	Languages *language.Registry
	Converter service.Converter
	// Tokens enables presenter tokens. Nil leaves slide control and the
	// dashboard open to anyone.
	Tokens *auth.TokenService
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	hub     *slides.Hub
	limiter *middleware.RateLimiter
	trusted []netip.Prefix
	stop    chan struct{}
}

// New opens the database and wires every route.
func New(cfg Config, deps Dependencies, logger *slog.Logger) (*Server, error) {
	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		trusted: trusted,
		stop:    make(chan struct{}),
	}

	// Interfaces holding a nil *TokenService are not nil; pass real nils.
	var authorizer slides.Authorizer
	var issuer service.TokenIssuer
	if deps.Tokens != nil {
		authorizer = deps.Tokens
		issuer = deps.Tokens
	}
	s.hub = slides.NewHub(authorizer, cfg.AllowedOrigins, logger)

	if cfg.RateLimitRPS > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
		s.limiter.StartCleanup(time.Minute, s.stop)
	}

	sessions := service.NewSessionService(db, logger)
	decks := service.NewDeckService(service.DeckConfig{
		SlidesDir: cfg.SlidesDir,
		UploadDir: cfg.UploadDir,
		URLPrefix: "/slides",
	}, deps.Converter, issuer, logger)

	s.setupRoutes(
		handler.NewExecuteHandler(deps.Executor, deps.Languages, logger),
		handler.NewSessionHandler(sessions, logger),
		handler.NewDeckHandler(decks, cfg.MaxUploadBytes, logger),
		deps.Tokens,
	)

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /health                                  → liveness
// GET    /metrics                                 → Prometheus
// GET    /ws                                      → slide relay (WebSocket)
// GET    /slides/*                                → rendered slide images
// POST   /api/run                                 → run code in the sandbox
// GET    /api/languages                           → supported languages
// POST   /api/sessions/upload                     → upload a PDF deck
// GET    /api/sessions/{code}/notes               → speaker notes
// POST   /api/sessions/{code}/join                → student joins
// POST   /api/sessions/{code}/code                → student saves code + output
// GET    /api/sessions/{code}/students            → dashboard (presenter)
// GET    /api/sessions/{code}/students/{id}       → inspect one student (presenter)
//
// MIDDLEWARE ORDER MATTERS: RequestID → RealIP → Logger → Recoverer → CORS.
// RealIP only honours forwarding headers from configured proxies.
func (s *Server) setupRoutes(exec *handler.ExecuteHandler, sessions *handler.SessionHandler, decks *handler.DeckHandler, tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(middleware.RealIP(s.trusted))
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{handler.OutcomeHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/health", handler.HandleHealth)
	s.router.Handle("/metrics", metrics.Handler())
	s.router.Handle("/ws", s.hub)

	fileServer := http.FileServer(http.Dir(s.config.SlidesDir))
	s.router.Handle("/slides/*", http.StripPrefix("/slides/", fileServer))

	presenterOnly := auth.RequirePresenter(tokens, func(r *http.Request) string {
		return chi.URLParam(r, "code")
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}
			r.Post("/run", exec.HandleRun)
		})
		r.Get("/languages", exec.HandleLanguages)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/upload", decks.HandleUpload)

			r.Route("/{code}", func(r chi.Router) {
				r.Get("/notes", decks.HandleNotes)
				r.Post("/join", sessions.HandleJoin)
				r.Post("/code", sessions.HandleSaveCode)

				r.Group(func(r chi.Router) {
					r.Use(presenterOnly)
					r.Get("/students", sessions.HandleListStudents)
					r.Get("/students/{studentId}", sessions.HandleGetStudent)
				})
			})
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases what New acquired.
func (s *Server) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	return s.db.Close()
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests. A run in
// progress finishes within its deadline, so the shutdown timeout only has to
// cover that plus slow uploads.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
