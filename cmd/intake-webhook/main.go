// Command intake-webhook serves the notification endpoint along with health,
// metrics and read-only status routes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	intake "github.com/goliatone/go-transcript-intake"
	zlog "github.com/goliatone/go-transcript-intake/adapters/zerolog"
	"github.com/goliatone/go-transcript-intake/metrics"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 2 * time.Minute
	idleTimeout     = 2 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := zlog.New(os.Stdout, *logLevel)
	if err := run(*configPath, logger); err != nil {
		logger.Error("intake webhook stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *zlog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := intake.LoadConfig(ctx, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	recorder := metrics.NewRecorder()
	app, err := intake.Setup(ctx, cfg,
		intake.WithLogger(logger),
		intake.WithLoggerProvider(zlog.NewProvider(logger)),
		intake.WithMetrics(recorder),
	)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close intake resources", "error", err)
		}
	}()

	var status http.Handler
	if queries, err := app.Queries(); err == nil {
		status = statusRoutes(queries)
	} else {
		logger.Warn("status routes disabled", "error", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newRouter(app.Handler(), recorder.Handler(), status),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("intake webhook listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down intake webhook")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newRouter mounts status only when it is non-nil.
func newRouter(notifications http.Handler, metricsHandler http.Handler, status http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metricsHandler)
	// The provider handshakes with GET or POST, so every method reaches the
	// receiver.
	r.Handle("/notifications", notifications)
	if status != nil {
		r.Mount("/status", status)
	}
	return r
}
