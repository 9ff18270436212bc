// Package main provides aictl, the operator CLI for AI provider keys, the model catalog and admin accounts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/auswanderer-plattform/backend/internal/app"
	"github.com/auswanderer-plattform/backend/internal/config"
	"github.com/auswanderer-plattform/backend/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aictl",
		Short: "Operate the Auswanderer AI backend",
		Long: `aictl manages what the admin UI manages, from a shell.

  aictl genkey             Generate an AI_KEY_ENCRYPTION_SECRET
  aictl encrypt <key>      Encrypt a provider API key for the database
  aictl mask <key>         Show a key the way the admin UI does
  aictl catalog check      Run a model catalog check now
  aictl catalog pending    List proposals waiting for review
  aictl admin create       Create an admin account`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		genkeyCmd(),
		encryptCmd(),
		maskCmd(),
		catalogCmd(),
		adminCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads the configuration, wires the services and hands them to fn
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Setup(&cfg.Logging, cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
