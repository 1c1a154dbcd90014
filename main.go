package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"futures-radar-bot/config"
	"futures-radar-bot/internal/logging"
	"futures-radar-bot/internal/runner"
	"futures-radar-bot/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)

	// Optional secret overlay before validation so Vault-provided
	// credentials count as present.
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Error("vault client init failed", "error", err.Error())
		os.Exit(1)
	}
	if vaultClient.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := vaultClient.Overlay(ctx, cfg)
		cancel()
		if err != nil {
			logger.Error("vault secret overlay failed", "error", err.Error())
			os.Exit(1)
		}
		logger.Info("vault secrets loaded")
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("config validation failed", "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.New(cfg, logger).Run(ctx); err != nil {
		logger.Error("pipeline exited with error", "error", err.Error())
		os.Exit(1)
	}
}
