package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	ambulatoryapi "github.com/saude-al/ambulatorio/internal/ambulatory/api"
	"github.com/saude-al/ambulatorio/internal/ambulatory/application"
	"github.com/saude-al/ambulatorio/internal/ambulatory/domain"
	"github.com/saude-al/ambulatorio/internal/ambulatory/infrastructure"
	"github.com/saude-al/ambulatorio/internal/audit"
	"github.com/saude-al/ambulatorio/internal/shared/auth"
	"github.com/saude-al/ambulatorio/internal/shared/config"
	"github.com/saude-al/ambulatorio/internal/shared/database"
	"github.com/saude-al/ambulatorio/internal/shared/events"
	"github.com/saude-al/ambulatorio/internal/shared/locker"
	"github.com/saude-al/ambulatorio/internal/shared/logging"
	"github.com/saude-al/ambulatorio/internal/shared/metrics"
	secmiddleware "github.com/saude-al/ambulatorio/internal/shared/middleware"
)

const serviceName = "ambulatorio"

// App holds all application dependencies
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *database.DB
	Bus       events.EventBus
	Transport string
	Redis     *redis.Client
}

func main() {
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Outpatient contraception program: patients, intake profiles and device consultations",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logging.Init(serviceName, cfg.Log)

			ctx := cmd.Context()
			db, err := database.New(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			return database.Migrate(ctx, db.Pool)
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app := &App{Config: cfg, Logger: logging.Init(serviceName, cfg.Log)}

	// Storage
	var repo domain.Repository
	var auditRepo audit.AuditRepository
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return err
		}
		app.DB = db
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		repo = infrastructure.NewPostgresRepository(db.Pool)
		auditRepo = audit.NewRepository(db.Pool)
	} else {
		log.Warn().Msg("database disabled, records are kept in memory only")
		repo = infrastructure.NewMemoryRepository()
	}

	// Events
	bus, transport, err := events.NewEventBus(ctx, cfg.KurrentDB)
	if err != nil {
		return err
	}
	app.Bus, app.Transport = bus, transport
	defer bus.Close()

	if auditRepo == nil {
		if esdbBus, ok := bus.(*events.Bus); ok {
			auditRepo = audit.NewKurrentDBRepository(esdbBus.Client())
		} else {
			auditRepo = audit.NewMemoryRepository()
		}
	}
	if err := auditRepo.Initialize(ctx); err != nil {
		return fmt.Errorf("audit initialization failed: %w", err)
	}
	if err := audit.NewSubscriber(auditRepo, bus).Start(ctx); err != nil {
		return fmt.Errorf("audit subscriber failed to start: %w", err)
	}

	// Per-patient locking
	opts := []application.Option{}
	if cfg.Redis.Enabled() {
		client, err := locker.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		app.Redis = client
		defer client.Close()

		opts = append(opts,
			application.WithLocker(locker.NewRedisLocker(client, serviceName)),
			application.WithLockTimeout(cfg.Redis.LockTTL, 3*time.Second),
		)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("consultation writes locked through redis")
	}

	svc := application.NewService(repo, bus, opts...)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secmiddleware.RequestLogger(app.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	}
	if cfg.RateLimit.Enabled {
		r.Use(secmiddleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).Middleware)
	}
	r.Use(secmiddleware.BodyLimit(1 << 20))

	// Unauthenticated
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth))

		r.Mount("/", ambulatoryapi.NewHandler(svc).Routes())
		r.Mount("/audit", audit.NewHandler(auditRepo).Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		close(done)
	}()

	log.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Bool("database", app.DB != nil).
		Str("events", app.Transport).
		Bool("redis_lock", app.Redis != nil).
		Bool("auth", cfg.Auth.Enabled).
		Msg("server starting")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	log.Info().Msg("server stopped")
	return nil
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    serviceName,
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if app.Transport == "kurrentdb" {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		if app.Redis != nil {
			if err := app.Redis.Ping(r.Context()).Err(); err != nil {
				checks["redis"] = "not ready: " + err.Error()
			} else {
				checks["redis"] = "ready"
			}
		} else {
			checks["redis"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"ready":  allReady,
			"checks": checks,
		})
	}
}
