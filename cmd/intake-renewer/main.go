// Command intake-renewer keeps the provider subscription alive. By default it
// runs the daily schedule until interrupted; -once runs a single tick and
// exits non-zero when the renewal fails.
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

	intake "github.com/goliatone/go-transcript-intake"
	zlog "github.com/goliatone/go-transcript-intake/adapters/zerolog"
	"github.com/goliatone/go-transcript-intake/artifacts"
	intakecommand "github.com/goliatone/go-transcript-intake/command"
	"github.com/goliatone/go-transcript-intake/core"
	"github.com/goliatone/go-transcript-intake/metrics"
	"github.com/goliatone/go-transcript-intake/renewal"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	once := flag.Bool("once", false, "run a single renewal and exit")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := zlog.New(os.Stdout, *logLevel)
	if err := run(*configPath, *once, *metricsAddr, logger); err != nil {
		logger.Error("intake renewer failed", "error", err, "text_code", core.MapError(err).TextCode)
		os.Exit(1)
	}
}

func run(configPath string, once bool, metricsAddr string, logger *zlog.Logger) error {
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
		// the renewer never writes transcripts
		intake.WithArtifactStore(artifacts.NewMemoryStore()),
	)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close intake resources", "error", err)
		}
	}()

	if once {
		return runOnce(ctx, app)
	}

	if metricsAddr != "" {
		server := &http.Server{Addr: metricsAddr, Handler: recorder.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	scheduler, err := renewal.NewScheduler(app.Renewer, cfg.Subscription.Schedule, app.Telemetry)
	if err != nil {
		return err
	}
	scheduler.Start()
	<-ctx.Done()

	logger.Info("stopping renewal scheduler")
	<-scheduler.Stop().Done()
	return nil
}

func runOnce(ctx context.Context, app *intake.App) error {
	facade, err := app.Facade()
	if err != nil {
		return err
	}
	outcome, err := facade.RenewSubscription(ctx, intakecommand.TriggerOnce)
	if err != nil {
		return fmt.Errorf("renewal %s: %w", outcome.RequestID, err)
	}
	return nil
}
