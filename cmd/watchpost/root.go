package main

import (
	"os"

	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/logger"
	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "watchpost",
		Short: "Watchlist monitoring and alert correlation",
		Long: `watchpost keeps a list of watched persons and vehicles, correlates
camera detections against it and notifies operators when a watched target
appears during its enforcement window.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	cmd.AddCommand(newServeCommand(opts), newExportCommand(opts), newVersionCommand())
	return cmd
}

// load reads settings and builds the process logger.
func (o *rootOptions) load() (*conf.Settings, logger.Logger, error) {
	settings, err := conf.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		settings.Log.Level = o.logLevel
	}
	log := logger.NewZapLogger(os.Stderr, logger.LogLevel(settings.Log.Level), settings.Log.Format)
	return settings, log, nil
}
