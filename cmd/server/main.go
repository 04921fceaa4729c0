package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a config file (yaml, json or toml)")
	logLevel := pflag.String("log-level", "", "override the configured log level")
	pflag.Parse()

	config, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		config.Log.Level = *logLevel
	}

	logger, err := server.NewLogger(config.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(config, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(config *server.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting room chat relay",
		zap.String("port", config.Port),
		zap.Strings("allowed_origins", config.AllowedOrigins))

	hub := server.NewHub(config, logger)
	httpServer := server.CreateServer(config.Port, server.SetupRoutes(hub))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		return server.StartServer(httpServer, logger)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		shutdownErr := server.ShutdownServer(httpServer, config.ShutdownTimeout, logger)
		if err := hub.Shutdown(config.ShutdownTimeout); err != nil {
			logger.Warn("Hub shutdown incomplete", zap.Error(err))
		}
		return shutdownErr
	})

	return g.Wait()
}
