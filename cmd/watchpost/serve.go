package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/facilityops/watchpost/internal/app"
	"github.com/facilityops/watchpost/internal/logger"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, detection feeds and correlation engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, log, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, settings, log, version)
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info("watchpost starting",
				logger.String("version", version),
				logger.String("listen", settings.Server.Listen),
				logger.String("match_mode", settings.Correlation.MatchMode),
				logger.String("database", settings.Database.Driver))
			return a.Run(ctx)
		},
	}
}
