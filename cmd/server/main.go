package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomcast/internal/chat"
	"roomcast/internal/config"
	"roomcast/internal/db"
	"roomcast/internal/metrics"
	myMiddleware "roomcast/internal/middleware"
	"roomcast/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const sweepInterval = time.Minute

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Config & Logger
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	var (
		store     chat.Store
		usersRepo *user.Repository
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to connect to DB: %w", err)
		}
		defer func() {
			logger.Info("Closing database...")
			_ = database.Close()
		}()
		logger.Info("Connected to PostgreSQL")

		if err := database.AutoMigrate(ctx); err != nil {
			return exitRuntime, fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Database schema initialized")

		store = chat.NewPostgresStore(database.Conn)
		usersRepo = user.NewRepository(database.Conn)
	default:
		logger.Warn("Using in-memory store; data is lost on restart")
		store = chat.NewMemoryStore()
	}

	// Names come from the users table when there is one, otherwise from the
	// credentials presented on connect.
	userService := user.NewService(nil, cfg.JWTSecret)
	if usersRepo != nil {
		userService = user.NewService(usersRepo, cfg.JWTSecret)
	}

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 4. Fan-out
	hub := chat.NewHub(logger)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return exitRuntime, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("Connected to Redis", "addr", cfg.RedisAddr)

		relay := chat.NewRedisRelay(redisClient, cfg.RedisChannel, logger)
		hub.WithRelay(relay)
		go func() {
			if err := relay.Run(ctx, hub); err != nil {
				logger.Error("Relay subscription stopped", "error", err)
				stop()
			}
		}()
	}

	limiter := chat.NewRateLimiter(cfg.RateLimitMessages, cfg.RateLimitInterval)
	go sweep(ctx, limiter, logger)

	service := chat.NewService(store, userService, hub, limiter, m, logger).
		WithPageSize(cfg.HistoryPageSize)
	chatHandler := chat.NewHandler(ctx, hub, service, cfg.SendBufferSize, logger)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)
	apiLimiter := myMiddleware.NewRateLimiter(cfg.APIRequestsPerSec, cfg.APIBurst)

	// 5. Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			logger.Warn("Health check failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/ws", chatHandler.ServeWs)

		r.Group(func(r chi.Router) {
			r.Use(apiLimiter.Handle)
			r.Get("/api/rooms", chatHandler.ListRooms)
			r.Get("/api/rooms/{roomID}/messages", chatHandler.GetRoomMessages)
		})
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", cfg.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return exitRuntime, fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return exitOK, nil
}

// sweep drops idle rate windows so the limiter does not grow with every
// user ever seen.
func sweep(ctx context.Context, limiter *chat.RateLimiter, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(); n > 0 {
				logger.Debug("Swept idle rate windows", "count", n)
			}
		}
	}
}
