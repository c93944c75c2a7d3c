package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/app"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/config"
	"github.com/ImpulseADHD/Chief-Productivity-Officer/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:          "cpo",
		Short:        "Chief Productivity Officer: a Discord study and check-in bot",
		Long:         "cpo runs the Discord bot behind /checkin, study groups and personal task lists, alongside a small HTTP API with health, metrics and a live check-in feed.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml, toml, json or .env); environment variables take precedence")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newSyncCommandsCmd(opts),
	)
	return rootCmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			built, log, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer func() {
				if err := built.Cleanup(); err != nil {
					log.WithError(err).Warn("cleanup failed")
				}
				log.Info("shutdown complete")
			}()
			return built.Serve(ctx, log)
		},
	}
}

func newSyncCommandsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-commands",
		Short: "Register the slash commands and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			built, log, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() {
				if err := built.Cleanup(); err != nil {
					log.WithError(err).Warn("cleanup failed")
				}
			}()
			if err := built.SyncCommands(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "registered %d commands\n", len(built.Bot.Definitions()))
			return err
		},
	}
}

func setup(ctx context.Context, opts *rootOptions) (*app.BuildResult, *logrus.Logger, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("logger error: %w", err)
	}
	built, err := app.Build(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return built, log, nil
}
