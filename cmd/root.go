/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"io"
	"log/slog"
	"os"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "Relay chat messages to a webhook and render its replies",
	Long: `chatrelay sends chat messages to an HTTP webhook and turns whatever the
webhook answers (JSON of any shape, double-encoded JSON, markdown fences, HTML)
into safe plain text for a terminal chat, Telegram, or an HTTP API.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the configured logger as the slog default.
func setupLogging(cfg config.LoggingConfig, writer io.Writer) error {
	appLogger, err := logger.NewWithWriter(cfg, writer)
	if err != nil {
		return err
	}

	slog.SetDefault(appLogger)
	return nil
}
