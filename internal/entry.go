// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lookout/internal/api"
	"github.com/starford/lookout/internal/backend"
	"github.com/starford/lookout/internal/cache"
	"github.com/starford/lookout/internal/capture"
	"github.com/starford/lookout/internal/mcpserver"
	"github.com/starford/lookout/internal/service"
	"github.com/starford/lookout/internal/sse"
	"github.com/starford/lookout/internal/submit"
)

// App is a wired service with the resources it owns.
type App struct {
	Service *service.Service
	Inbox   *capture.PhotoInbox
	Logger  *slog.Logger

	cache cache.Store
}

// Close releases the cache connection.
func (a *App) Close() error {
	return a.cache.Close()
}

// Open builds the service from configuration for one-shot commands. The
// caller must Close the returned App.
func Open(opts ...Option) (*App, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return open(app, newLogger(app), nil)
}

func open(app *application, logger *slog.Logger, events service.Publisher) (*App, error) {
	cfg := app.config

	client, err := backend.New(backend.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}

	store, err := openCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	inbox, err := capture.NewPhotoInbox(cfg.Photo.Dir, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init photo inbox: %w", err)
	}

	var locator capture.StaticLocator
	if cfg.Location.Configured() {
		locator.Position = &capture.Coordinates{Latitude: *cfg.Location.Lat, Longitude: *cfg.Location.Lon}
	}

	svc := service.New(service.Options{
		Backend: client,
		Cache:   store,
		Events:  events,
		Encoder: &submit.Encoder{JPEGQuality: cfg.Photo.JPEGQuality},
		Photos:  inbox.Store(),
		Picker:  inbox,
		Locator: locator,
		Logger:  logger,
	})
	return &App{Service: svc, Inbox: inbox, Logger: logger, cache: store}, nil
}

func openCache(cfg CacheConfig) (cache.Store, error) {
	switch cfg.Driver {
	case CacheDriverRedis:
		return cache.NewRedis(cfg.RedisURL, cfg.TTL)
	case CacheDriverDisabled:
		return cache.Nop{}, nil
	default:
		return cache.OpenSQLite(cfg.Path, cfg.TTL)
	}
}

func newLogger(app *application) *slog.Logger {
	out := app.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	logger := newLogger(app)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend_url", cfg.Backend.BaseURL),
		slog.String("cache_driver", cfg.Cache.Driver),
		slog.String("photo_dir", cfg.Photo.Dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	a, err := open(app, logger, broker)
	if err != nil {
		return err
	}
	defer a.Close()

	apiRouter := api.NewRouter(a.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the photo inbox and tell screens about new photos.
	g.Go(func() error {
		err := a.Inbox.Watch(gCtx, func(name string) {
			broker.Publish(sse.Event{Type: sse.EventPhoto, Data: map[string]string{"name": name}})
		})
		if err != nil {
			logger.Warn("photo inbox watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// gCtx ends on SIGINT/SIGTERM, when ctx is cancelled or when a sibling
	// fails. The inbox watcher stops with it.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutdown requested", slog.String("cause", context.Cause(gCtx).Error()))

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr unless
// another output was given.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	a, err := open(app, newLogger(app), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Logger.Info("MCP server starting", slog.String("backend_url", app.config.Backend.BaseURL))
	return mcpserver.New(a.Service).ServeStdio()
}
