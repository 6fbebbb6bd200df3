package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hosteldesk/desk-relay-go/internal/config"
	"github.com/hosteldesk/desk-relay-go/internal/database"
	"github.com/hosteldesk/desk-relay-go/internal/handler"
	"github.com/hosteldesk/desk-relay-go/internal/jobs"
	"github.com/hosteldesk/desk-relay-go/internal/middleware"
	"github.com/hosteldesk/desk-relay-go/internal/redis"
	"github.com/hosteldesk/desk-relay-go/internal/relay"
	"github.com/hosteldesk/desk-relay-go/internal/repository"
	"github.com/hosteldesk/desk-relay-go/internal/session"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	// The scan journal is optional; without a database scans are relay-only.
	var journal repository.ScanJournal
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		cancel()
		log.Info().Msg("database connected, scan journal enabled")

		journal = repository.NewScanJournal(db.DB)
	}

	// Session registry backend: redis keeps desks alive across relay
	// restarts, the in-memory registry needs nothing.
	var registry session.Registry
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected, using redis session registry")

		registry = session.NewRedisRegistry(redisClient, cfg.SessionTTL())
	} else {
		registry = session.NewMemoryRegistry(cfg.SessionTTL())
	}

	hub := relay.NewHub(registry, journal)

	deskHandler := handler.NewDeskHandler(registry, journal, cfg.SessionTTL())
	socketHandler := handler.NewSocketHandler(hub)

	createLimiter := middleware.NewRateLimiter(time.Minute)
	createLimitMiddleware := middleware.NewIPRateLimitMiddleware(createLimiter, cfg.CreateLimitPerMin, "desk-create")

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"sessions":  registry.Count(r.Context()),
			"rooms":     hub.RoomCount(),
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/desk", func(r chi.Router) {
		r.With(createLimitMiddleware.Handler).Post("/create", deskHandler.Create)
		r.Post("/refresh", deskHandler.Refresh)
		r.Post("/disable", deskHandler.Disable)
		r.Post("/scans", deskHandler.Scans)
	})

	r.Get("/accommodationsocket", socketHandler.ServeHTTP)

	cleanupJob := jobs.NewCleanupJob(registry, journal, cfg.JournalRetention(), cfg.SweepInterval())
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0, // long-lived pairing sockets
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
