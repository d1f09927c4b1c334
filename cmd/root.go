// Package cmd defines the CLI commands of the buongiorno executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/buongiorno-bot/internal/app"
	"github.com/JakeFAU/buongiorno-bot/internal/config"
	"github.com/JakeFAU/buongiorno-bot/internal/logging"
	"github.com/JakeFAU/buongiorno-bot/internal/scheduler"
)

// Runner is what the subcommands need from the application. It lets tests
// inject a fake.
type Runner interface {
	Run(ctx context.Context) error
	RunJob(ctx context.Context, name string) (scheduler.CycleReport, error)
	Close()
}

type appKeyType struct{}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Runner, error) {
	return app.Build(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	var logger *zap.Logger

	cmd := &cobra.Command{
		Use:   "buongiorno",
		Short: "A chat bot that sends Italian greeting images.",
		Long: `buongiorno scrapes greeting images from a set of Italian sites and
delivers them to subscribed chats on a daily schedule. It also answers chat
commands for on-demand images, subscriptions and birthdays.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				Service:     "buongiorno-bot",
				Version:     cfg.Release.Version,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			a, err := newApp(cmd.Context(), &cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, a))
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars with the BUONGIORNO_ prefix override it")
	cmd.AddCommand(newServeCmd(), newSendCmd())
	return cmd
}

func resolveApp(ctx context.Context) (Runner, error) {
	a, ok := ctx.Value(appKeyType{}).(Runner)
	if !ok || a == nil {
		return nil, errors.New("application not initialized")
	}
	return a, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		zap.L().Fatal("command execution failed", zap.Error(err))
	}
}
