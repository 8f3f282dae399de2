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

	"github.com/ppwm/matcher-server-go/internal/config"
	"github.com/ppwm/matcher-server-go/internal/database"
	"github.com/ppwm/matcher-server-go/internal/handler"
	"github.com/ppwm/matcher-server-go/internal/identity"
	"github.com/ppwm/matcher-server-go/internal/jobs"
	"github.com/ppwm/matcher-server-go/internal/mailer"
	"github.com/ppwm/matcher-server-go/internal/middleware"
	"github.com/ppwm/matcher-server-go/internal/redis"
	"github.com/ppwm/matcher-server-go/internal/repository"
	"github.com/ppwm/matcher-server-go/internal/service"
	"github.com/ppwm/matcher-server-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	repos, closeStorage := openStorage(cfg)
	defer closeStorage()

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	registry := service.NewCodeRegistry(repos.Codes)
	notifier := service.NewNotifier(
		repos.Notifications,
		registry,
		mailer.NewSMTPSender(cfg.Mail()),
		broker,
		cfg.NotifyWorkers,
		cfg.NotifyMaxAttempts,
	)
	notifier.Start()
	defer notifier.Stop()

	directory := service.NewUserDirectory(repos.Users)
	matcher := service.NewMatcher(directory, registry, notifier.OnComplete)
	rateLimiter := service.NewRateLimiter(redisClient.Client)

	identitySource := identity.NewCachedSource(
		identity.NewGitHubSource(cfg.GitHubAPIURL, nil),
		cfg.IdentityCacheTTL(),
	)
	defer identitySource.Stop()

	identityMiddleware := middleware.NewIdentityMiddleware(identitySource)
	submitLimitMiddleware := middleware.NewSubmitRateLimitMiddleware(
		rateLimiter, cfg.SubmitRateLimitPerMin, config.SubmitRateLimitWindow,
	)
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(cfg.Admin())
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	codeHandler := handler.NewCodeHandler(matcher, directory)
	profileHandler := handler.NewProfileHandler(directory)
	adminHandler := handler.NewAdminHandler(registry, adminAuthMiddleware.Handler)
	eventsHandler := handler.NewEventsHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/profile/{login}", profileHandler.Show)

		r.Group(func(r chi.Router) {
			r.Use(identityMiddleware.Handler)
			r.Get("/events", eventsHandler.ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
				r.Use(bodyLimitMiddleware.Handler)
				r.Mount("/", codeHandler.Routes(submitLimitMiddleware.Handler))
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Mount("/", adminHandler.Routes())
	})

	retryJob := jobs.NewNotificationRetryJob(notifier, config.NotifyRetryInterval)
	retryJob.Start()
	defer retryJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("storage", cfg.StorageDriver).Msg("starting server")
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

// openStorage connects and migrates postgres, or returns a process-local store.
func openStorage(cfg *config.Config) (repository.Repositories, func()) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn().Msg("using in-memory storage: data is lost on restart")
		return repository.NewMemoryStore().Repositories(), func() {}
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Msg("database connected")

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	return repository.NewPostgresRepositories(db.DB), func() { db.Close() }
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
