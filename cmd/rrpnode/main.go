package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rrpnode/internal/app"
	"rrpnode/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, os.Stdout)

	if cfg.KeyStore.PassphraseEnv != "" && os.Getenv(cfg.KeyStore.PassphraseEnv) == "" {
		logger.Warn("keystore passphrase env is empty", "env", cfg.KeyStore.PassphraseEnv)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	if err := application.Run(ctx); err != nil {
		logger.Error("node stopped", "error", err)
		os.Exit(1)
	}
}
