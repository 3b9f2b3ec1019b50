// Package main provides the CLI entry point for the SQS consumer
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/our-edu/go-sqs-consumer/commands"
	"github.com/our-edu/go-sqs-consumer/internal/config"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Load configuration from .env file and environment variables
	cfg := config.Load()
	logger.Debug().
		Str("driver", string(cfg.Driver)).
		Str("region", cfg.AWS.Region).
		Str("prefix", cfg.SQS.Prefix).
		Msg("Configuration loaded")

	rootCmd := &cobra.Command{
		Use:   "sqsconsumer",
		Short: "SQS Consumer CLI",
		Long: `SQS Consumer CLI long-polls an AWS SQS queue with bounded concurrency,
deleting handled messages and returning failed ones to the queue.

Configuration is read from a .env file and the environment.`,
		SilenceUsage: true,
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if !verbose {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	}

	commands.AddCommands(rootCmd, cfg, logger)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		cancel()
		os.Exit(1)
	}
}
