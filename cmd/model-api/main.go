// Package main provides the prediction HTTP API.
// Loads the model artifact once at startup and serves /predict until signalled.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"daily-feature-store/internal/config"
	"daily-feature-store/internal/logging"
	"daily-feature-store/internal/serving"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	modelPath := flag.String("model", cfg.ModelPath, "Path to the model artifact (YAML)")
	port := flag.Int("port", cfg.APIPort, "HTTP listen port")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := logging.New(*logLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("model-api")

	if err := run(cfg, *modelPath, *port, logger); err != nil {
		logger.Error("model api stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, modelPath string, port int, logger *zap.Logger) error {
	model, err := serving.LoadModel(modelPath)
	if err != nil {
		return err
	}
	logger.Info("model loaded",
		zap.String("path", modelPath),
		zap.String("model", model.Name()),
		zap.String("ticker", model.Ticker()),
		zap.Int("features", len(model.Features())),
	)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           serving.NewServer(model, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
