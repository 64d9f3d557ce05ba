package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"payment-advisor-api/internal/advisory"
	"payment-advisor-api/internal/budget"
	"payment-advisor-api/internal/cache"
	"payment-advisor-api/internal/config"
	"payment-advisor-api/internal/database"
	"payment-advisor-api/internal/events"
	"payment-advisor-api/internal/features"
	"payment-advisor-api/internal/handler"
	"payment-advisor-api/internal/logging"
	"payment-advisor-api/internal/middleware"
	"payment-advisor-api/internal/service"
	"payment-advisor-api/internal/tracing"
)

var version = "dev"

func main() {
	configFile := flag.String("config", "", "Path to JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Environment: cfg.Tracing.Environment,
		Version:     version,
		SampleRatio: cfg.Tracing.SampleRatio,
	}); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	gate, responses, closeShared, err := sharedState(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeShared()

	flags := features.NewDefaultManager(cfg.Engine.GeneralFallback, cfg.Engine.SynthesizedReward, cfg.Advisory.Enabled)

	em := events.NewManager(cfg.Events.Enabled, logger)
	subscribeLogging(em, logger)
	defer em.Shutdown()

	merger := advisory.NewMerger(newAdvisor(cfg, responses, logger), gate,
		advisory.WithFlags(flags),
		advisory.WithEvents(em),
		advisory.WithLogger(logger),
		advisory.WithTimeout(cfg.Advisory.Timeout.Std()),
	)

	svc := service.NewService(db,
		service.WithMerger(merger),
		service.WithEvents(em),
		service.WithFlags(flags),
		service.WithThresholds(budget.Thresholds{
			SlightlyOff: cfg.Engine.SlightlyOffMargin,
			OffTrack:    cfg.Engine.OffTrackMargin,
		}),
		service.WithMinOfferAmount(cfg.Engine.MinOfferAmount),
		service.WithLogger(logger),
	)

	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
		Health:      db,
		Features:    flags,
		Logger:      logger,
	})

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Tracing(tracing.DefaultServiceName))

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
		r.Use(middleware.RateLimit(rateLimiter, logger))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Security.Origins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h.Routes(r)

	server := newServer(cfg, r)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", server.Addr,
			"database", cfg.Database.Path,
			"rate_limit", cfg.RateLimit.Rate,
			"rate_window_seconds", cfg.RateLimit.Window,
			"redis", cfg.Redis.Addr != "",
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down tracing", "error", err)
	}
	return nil
}

// newServer builds the HTTP server. Requests get a background base context so
// that a shutdown signal lets in-flight requests drain instead of cancelling them.
func newServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}
}

// sharedState returns the advisory gate and response cache. With Redis
// configured both live there and are shared across instances; otherwise they
// are process-local.
func sharedState(ctx context.Context, cfg *config.Config, logger *slog.Logger) (advisory.Gate, cache.Cache, func(), error) {
	cooldown := cfg.Advisory.Cooldown.Std()

	if cfg.Redis.Addr == "" {
		gate := advisory.NewMemoryGate(cooldown)
		responses := cache.NewInMemoryCache()
		return gate, responses, func() {
			gate.Stop()
			responses.Stop()
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := cache.Connect(connectCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("using redis for advisory gate and cache", "addr", cfg.Redis.Addr)

	// The lock must outlive a call that runs to its timeout.
	lockTTL := cfg.Advisory.Timeout.Std() + cooldown
	gate := advisory.NewRedisGate(client, cfg.Redis.KeyPrefix+"gate:", cooldown, lockTTL, logger)
	responses := cache.NewRedisCache(client, cfg.Redis.KeyPrefix+"advice:")
	return gate, responses, closeRedis(client, logger), nil
}

func closeRedis(client *redis.Client, logger *slog.Logger) func() {
	return func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err)
		}
	}
}

// newAdvisor returns nil when no API key is configured, which leaves every
// advisory answer deterministic.
func newAdvisor(cfg *config.Config, responses cache.Cache, logger *slog.Logger) advisory.Advisor {
	if cfg.Advisory.APIKey == "" {
		logger.Warn("advisory API key not set, using deterministic advice only")
		return nil
	}

	client, err := advisory.NewGeminiClient(advisory.GeminiConfig{
		APIKey:      cfg.Advisory.APIKey,
		Model:       cfg.Advisory.Model,
		BaseURL:     cfg.Advisory.BaseURL,
		HTTPTimeout: cfg.Advisory.Timeout.Std(),
	})
	if err != nil {
		logger.Error("failed to create advisory client, using deterministic advice only", "error", err)
		return nil
	}
	return advisory.NewCachedAdvisor(client, responses, cfg.Advisory.CacheTTL.Std(), logger)
}

func subscribeLogging(em *events.Manager, logger *slog.Logger) {
	for _, t := range []events.EventType{
		events.EventOfferRecommended,
		events.EventScoreComputed,
		events.EventAdvisoryCompleted,
		events.EventTransactionsIngested,
	} {
		em.Subscribe(t, func(ctx context.Context, e events.Event) error {
			logger.Info("domain event", "event", e.Type, "event_id", e.ID, "data", e.Data)
			return nil
		})
	}
}
