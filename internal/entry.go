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

	"github.com/starford/mediatag/internal/api"
	"github.com/starford/mediatag/internal/catalog"
	"github.com/starford/mediatag/internal/library"
	"github.com/starford/mediatag/internal/mcpserver"
	"github.com/starford/mediatag/internal/metrics"
	"github.com/starford/mediatag/internal/sse"
	"github.com/starford/mediatag/internal/storage"
	"github.com/starford/mediatag/internal/xmp"
)

// OpenLibrary wires the library directory, the metadata store and the
// catalog into a service. The returned close function releases the catalog.
func OpenLibrary(cfg *Config, logger *slog.Logger) (*library.Service, func() error, error) {
	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create library dir: %w", err)
	}

	lib, err := storage.NewFS(cfg.Library.Path, cfg.Library.StorageOptions()...)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	storeOpts, err := cfg.Library.FileStoreOptions()
	if err != nil {
		return nil, nil, fmt.Errorf("init metadata store: %w", err)
	}

	db, err := catalog.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init catalog: %w", err)
	}

	src := catalog.Source{
		Store:    xmp.Rooted(xmp.NewFileStore(storeOpts...), lib.Resolve),
		Lib:      lib,
		Resolver: cfg.Dates.Resolver(),
		Workers:  cfg.Library.Workers,
	}
	return library.NewService(db, src, logger), db.Close, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := NewLogger(cfg, app.logOut)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", cfg.Library.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("write_mode", cfg.Library.WriteMode),
		slog.String("date_precedence", cfg.Dates.Resolver().Precedence.String()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	metrics.Initialize()

	svc, closeLib, err := OpenLibrary(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLib()

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.TagsThrottle)
	broker.SetHeartbeat(cfg.Events.Heartbeat)
	defer broker.Close()
	svc.SetNotifier(broker.PublishRecordEvent)

	// Run initial scan.
	if _, err := svc.Rescan(ctx); err != nil {
		logger.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check and metrics endpoints (unauthenticated).
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
	r.Handle("/metrics", metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the catalog current with the file system.
	g.Go(func() error {
		return svc.Watch(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Shut down on signal or on the first failure.
	g.Go(func() error {
		<-gCtx.Done()
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

// RunMCP serves the MCP tools over stdio. The catalog is scanned first and
// kept current by the watcher while the session lasts.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := NewLogger(app.config, app.logOut)
	slog.SetDefault(logger)

	svc, closeLib, err := OpenLibrary(app.config, logger)
	if err != nil {
		return err
	}
	defer closeLib()

	if _, err := svc.Rescan(ctx); err != nil {
		logger.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := svc.Watch(watchCtx); err != nil {
			logger.Warn("watcher failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("MCP server starting on stdio", slog.String("library_path", app.config.Library.Path))
	return mcpserver.New(svc, app.version).ServeStdio()
}
