package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/utafrali/PriceTracker/internal/app"
	"github.com/utafrali/PriceTracker/internal/config"
	"github.com/utafrali/PriceTracker/pkg/logger"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand serves the API by default; configuration comes from the
// environment only.
func newRootCommand(stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "pricetracker",
		Short:         "Price tracker dashboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), stdout)
		},
	}
	root.SetOut(stdout)
	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
		&cobra.Command{
			Use:   "check-config",
			Short: "Validate the environment configuration and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "configuration ok (driver=%s, port=%d)\n", cfg.BackendDriver, cfg.HTTPPort)
				return nil
			},
		},
	)
	return root
}

func serve(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return err
	}

	log := logger.NewWithWriter("pricetracker", cfg.LogLevel, stdout)
	slog.SetDefault(log)
	log.Info("starting price tracker",
		slog.String("version", version),
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("backend_driver", cfg.BackendDriver),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		return err
	}

	log.Info("price tracker stopped")
	return nil
}
