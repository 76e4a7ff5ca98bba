// Package server is the composition root: it opens the stores, builds the
// services and handlers, mounts the routes and runs the HTTP server.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlite.DB (accounts, settings, chat, outbox)
//	              → postgres.DocumentStore or sqlite documents
//	              → services → handlers → chi routes
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get services.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/waypoint/internal/auth"
	"github.com/sakif/waypoint/internal/avatar"
	"github.com/sakif/waypoint/internal/config"
	"github.com/sakif/waypoint/internal/handler"
	"github.com/sakif/waypoint/internal/jobs"
	"github.com/sakif/waypoint/internal/middleware"
	"github.com/sakif/waypoint/internal/repository"
	"github.com/sakif/waypoint/internal/repository/postgres"
	sqliteRepo "github.com/sakif/waypoint/internal/repository/sqlite"
	"github.com/sakif/waypoint/internal/service"
)

// Server owns every long-lived resource. Start releases them on shutdown;
// Close does the same for servers that were never started.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	db        *sqliteRepo.DB
	pool      *pgxpool.Pool // nil unless DATABASE_URL is set
	docs      repository.DocumentStore
	sessions  *service.Sessions
	scheduler *jobs.Scheduler
	cancel    context.CancelFunc
}

// New opens the stores and wires the routes. Background work (document
// change feeds, the reminder job) runs until Start returns or Close is
// called.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := service.LocalClock{Location: loc}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("server: creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		docs:   db.Documents(),
		cancel: cancel,
	}

	if cfg.DatabaseURL != "" {
		if err := s.openPostgres(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	if err := s.setupRoutes(ctx, clock, loc); err != nil {
		s.Close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

// openPostgres switches user documents to PostgreSQL and starts the
// LISTEN loop that feeds cross-instance changes to subscribers.
func (s *Server) openPostgres(ctx context.Context) error {
	pool, err := postgres.NewPool(ctx, s.config.DatabaseURL, postgres.PoolOptions{
		MaxConns: s.config.DBMaxConns,
		MinConns: s.config.DBMinConns,
	})
	if err != nil {
		return err
	}
	s.pool = pool

	docs, err := postgres.NewDocumentStore(ctx, pool, s.logger)
	if err != nil {
		return err
	}
	go docs.Listen(ctx)
	s.docs = docs
	s.logger.Info("user documents stored in PostgreSQL")
	return nil
}

// setupRoutes builds services and handlers and mounts them.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz
//	POST   /auth/signup | /auth/signin | /auth/signout
//	GET    /auth/github/login | /auth/github/callback
//	GET    /api/public-events/nearby
//	       everything else under /api requires a token
//
// MIDDLEWARE ORDER:
// RequestID → RealIP → Logger → Recoverer → CORS. Recoverer sits inside
// Logger so a recovered panic is still logged as a 500.
func (s *Server) setupRoutes(ctx context.Context, clock service.Clock, loc *time.Location) error {
	cfg := s.config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// === Services ===
	settingsService := service.NewSettingsService(s.db)
	friendService := service.NewFriendService(s.db, s.docs, s.logger)
	chatService := service.NewChatService(s.db, s.logger)
	nearbyService := service.NewNearbyService(s.db, clock, cfg.NearbyRadiusMeters)
	notificationService := service.NewNotificationService(s.db, settingsService, s.docs, clock, s.logger)

	var uploader avatar.Uploader
	if cfg.AvatarsEnabled() {
		up, err := avatar.NewS3Uploader(ctx, avatar.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicURL:       cfg.S3PublicURL,
		})
		if err != nil {
			return err
		}
		uploader = up
	} else {
		s.logger.Warn("S3_BUCKET not set, avatar uploads are disabled")
	}
	profileService := service.NewProfileService(s.db, s.docs, uploader, s.logger)

	scheduler, err := jobs.NewScheduler(ctx, cfg.ReminderSchedule, loc, notificationService, s.logger)
	if err != nil {
		return err
	}
	s.scheduler = scheduler

	publicHandler := handler.NewPublicEventHandler(nearbyService)

	if !cfg.AuthEnabled() {
		s.logger.Warn("JWT_SECRET not set, authentication and all user routes are disabled")
		s.router.Route("/api", func(r chi.Router) {
			r.Get("/public-events/nearby", publicHandler.HandleNearby)
		})
		return nil
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	authService := service.NewAuthService(s.db, s.docs, tokens, auth.NewPasswordService(), s.logger)

	s.sessions = service.NewSessions(ctx, s.docs, clock, s.logger)
	authService.OnAuthStateChanged(s.sessions.HandleAuthChange)

	var github *auth.GitHubProvider
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	}
	secure := strings.HasPrefix(cfg.GitHubCallbackURL, "https://")

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, github, tokens.TTL(), secure, s.logger)
	progressHandler := handler.NewProgressHandler(s.sessions, s.logger)
	eventHandler := handler.NewEventHandler(s.sessions, s.logger)
	friendHandler := handler.NewFriendHandler(friendService, s.logger)
	chatHandler := handler.NewChatHandler(chatService, friendService, s.logger)
	profileHandler := handler.NewProfileHandler(profileService, settingsService, friendService, s.logger)
	settingsHandler := handler.NewSettingsHandler(settingsService)
	notificationHandler := handler.NewNotificationHandler(notificationService)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignUp)
		r.Post("/signin", authHandler.HandleSignIn)
		r.With(auth.OptionalAuth(tokens)).Post("/signout", authHandler.HandleSignOut)
		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Route("/api", func(api chi.Router) {
		api.Get("/public-events/nearby", publicHandler.HandleNearby)

		api.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/me", authHandler.HandleMe)

			r.Get("/progress", progressHandler.HandleGet)
			r.Post("/progress/checkin", progressHandler.HandleCheckIn)
			r.Post("/progress/press", progressHandler.HandlePress)
			r.Post("/progress/freezes", progressHandler.HandleRedeemFreeze)
			r.Post("/progress/freezes/apply", progressHandler.HandleApplyFreeze)
			r.Get("/calendar", progressHandler.HandleCalendar)

			r.Get("/events", eventHandler.HandleList)
			r.Post("/events", eventHandler.HandleAdd)
			r.Delete("/events/{id}", eventHandler.HandleRemove)
			r.Post("/events/{id}/complete", eventHandler.HandleComplete)

			r.Get("/friends", friendHandler.HandleList)
			r.Post("/friends", friendHandler.HandleAdd)
			r.Delete("/friends/{username}", friendHandler.HandleRemove)

			r.Get("/chats/direct/{userID}", chatHandler.HandleDirect)
			r.Get("/chats/{chatID}/messages", chatHandler.HandleHistory)
			r.Post("/chats/{chatID}/messages", chatHandler.HandleSend)
			r.Get("/chats/{chatID}/stream", chatHandler.HandleStream)

			r.Get("/profile", profileHandler.HandleGet)
			r.Patch("/profile", profileHandler.HandleUpdate)
			r.Put("/profile/avatar", profileHandler.HandleUploadAvatar)
			r.Get("/users/{id}", profileHandler.HandleGetUser)

			r.Get("/settings", settingsHandler.HandleGet)
			r.Patch("/settings", settingsHandler.HandleUpdate)

			r.Get("/notifications", notificationHandler.HandleList)
			r.Post("/public-events", publicHandler.HandleCreate)
		})
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP and runs the reminder job until SIGINT or SIGTERM, then
// shuts down gracefully and releases every resource.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	serverErrors := make(chan error, 1)

	s.scheduler.Start()

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
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// Close stops background work and closes the stores. It is safe to call on
// a partly built server.
func (s *Server) Close() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.sessions != nil {
		s.sessions.Close()
	}
	s.cancel()
	if s.pool != nil {
		s.pool.Close()
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("closing database", slog.String("error", err.Error()))
	}
}
