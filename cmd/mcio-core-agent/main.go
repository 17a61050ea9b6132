// Command mcio-core-agent is a reference host process for the core: it
// loads configuration, starts a Controller against the configured
// simulator endpoints, optionally exposes the read-only admin HTTP surface,
// and blocks until interrupted.
//
// This binary is a thin wiring exercise, not the library's primary
// interface — embedders are expected to import controller and environment
// directly, the way this file does.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mcio.dev/core/internal/adminapi"
	"mcio.dev/core/internal/config"
	"mcio.dev/core/internal/logging"

	"mcio.dev/core/codec"
	"mcio.dev/core/controller"
	"mcio.dev/core/environment"
)

// nopDisplay discards every observation; a real embedder supplies its own
// DisplaySink to render frames or forward them to a training loop.
func nopDisplay(*codec.ObservationPacket) {}

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize structured logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	ctrl := controller.New(cfg, logger, registry)
	env := environment.New(ctrl, nopDisplay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := env.Start(ctx); err != nil {
		logger.Fatal("failed to start controller", logging.Error(err))
	}
	logger.Info("mcio-core-agent started",
		logging.String("action_addr", cfg.ActionAddr()),
		logging.String("observation_addr", cfg.ObservationAddr()),
	)

	var adminServer *http.Server
	if cfg.AdminEnabled {
		mux := http.NewServeMux()
		adminapi.NewHandlerSet(adminapi.Options{
			Logger:     logger,
			Controller: ctrl,
		}).Register(mux)
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		adminServer = &http.Server{Addr: cfg.AdminAddr, Handler: mux}
		go func() {
			logger.Info("admin HTTP surface listening", logging.String("address", cfg.AdminAddr))
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin HTTP surface terminated", logging.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if adminServer != nil {
		_ = adminServer.Shutdown(context.Background())
	}
	if err := env.Close(); err != nil {
		logger.Error("controller shutdown error", logging.Error(err))
	}
}
