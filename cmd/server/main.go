// Jarvis - conversational gateway server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/jarvis/internal/api"
	"github.com/ashureev/jarvis/internal/completion"
	"github.com/ashureev/jarvis/internal/config"
	"github.com/ashureev/jarvis/internal/desktop"
	"github.com/ashureev/jarvis/internal/health"
	"github.com/ashureev/jarvis/internal/launcher"
	"github.com/ashureev/jarvis/internal/middleware"
	"github.com/ashureev/jarvis/internal/notify"
	"github.com/ashureev/jarvis/internal/router"
	"github.com/ashureev/jarvis/internal/store"
	"github.com/ashureev/jarvis/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

//nolint:funlen // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.Store.Backend)
	if config.IsContainer() {
		slog.Warn("Running inside a container; applications will be launched inside it")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(cfg.Store.Backend, cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	slog.Info("Store connected", "backend", cfg.Store.Backend)

	completer, err := completion.New(ctx, completion.Config{
		Provider: cfg.Completion.Provider,
		URL:      cfg.Completion.URL,
		APIKey:   cfg.Completion.APIKey,
		Model:    cfg.Completion.Model,
		Timeout:  cfg.Completion.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize completion client: %w", err)
	}
	if cfg.Completion.APIKey == "" {
		slog.Warn("No completion API key configured; questions will get the fallback reply")
	}

	resolver := launcher.NewResolver(launcher.Options{
		Fallback: cfg.Launcher.Fallback,
		Logger:   logger,
	})
	if cfg.Launcher.AliasesFile != "" {
		if err := resolver.LoadFile(cfg.Launcher.AliasesFile); err != nil {
			return fmt.Errorf("load application aliases: %w", err)
		}
	}

	notifier, hub, err := notify.Build(notify.Config{
		Sinks:         cfg.Notify.Sinks,
		QueueSize:     cfg.Notify.QueueSize,
		Timeout:       cfg.Notify.Timeout,
		SpeechCommand: cfg.Notify.SpeechCommand,
		AllowedOrigin: cfg.FrontendURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize notifications: %w", err)
	}
	defer func() {
		if closeErr := notifier.Close(); closeErr != nil {
			slog.Error("Failed to close notifier", "error", closeErr)
		}
	}()

	assistant := router.New(resolver, completer, notifier, logger)
	signals := desktop.New()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	limiter.StartEviction(ctx)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, cfg.MaxRequestBody, logger)
	assistantHandler := api.NewAssistantHandler(baseHandler, assistant)
	desktopHandler := api.NewDesktopHandler(signals)
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.NewCORS(cfg.AllowedOrigins(), r).Handler)

	healthHandler.RegisterHealth(r)
	assistantHandler.RegisterRoutes(r, limiter.Middleware)
	desktopHandler.RegisterRoutes(r)

	if hub != nil {
		r.Get(web.NotificationsPath, hub.ServeHTTP)
		defer func() {
			if closeErr := hub.Close(); closeErr != nil {
				slog.Error("Failed to close notification hub", "error", closeErr)
			}
		}()
	}

	// Serve embedded page.
	page, err := web.Handler(web.Options{Notifications: hub != nil})
	if err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	r.Handle("/*", page)

	// Note: websocket subscribers are long lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	store.StartRetentionWorker(ctx, repo, cfg.Store.Retention, cfg.Store.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if cfg.GRPCHealth.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealth.Addr)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("listen for gRPC health on %s: %w", cfg.GRPCHealth.Addr, err)
		}
		healthServer := health.NewServer(repo, cfg.GRPCHealth.Interval, logger)
		g.Go(func() error {
			return healthServer.Serve(gctx, lis)
		})
	}

	if cfg.Launcher.AliasesFile != "" && cfg.Launcher.Watch {
		g.Go(func() error {
			if err := resolver.Watch(gctx, cfg.Launcher.AliasesFile); err != nil {
				slog.Warn("Alias hot reload disabled", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
