package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jobcoach/internal/cli"
	"jobcoach/internal/config"
	"jobcoach/internal/errors"
)

func main() {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// JOBCOACH_CONFIG names a config file; otherwise the default search
	// path is used.
	cfg, err := config.LoadConfigFile(os.Getenv("JOBCOACH_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := errors.New(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting jobcoach",
		"version", cli.Version,
		"log_level", cfg.App.LogLevel,
		"storage", cfg.Storage.Driver,
		"ai_provider", cfg.AI.Provider)

	if err := cli.Execute(ctx, cfg, logger); err != nil {
		logger.LogError(err, "Application execution failed")
		stop()
		os.Exit(1)
	}
}
