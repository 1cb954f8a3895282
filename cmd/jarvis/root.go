package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/harunnryd/jarvis/pkg/jarvis"
	"github.com/harunnryd/jarvis/pkg/logging"
	"github.com/harunnryd/jarvis/pkg/redact"
	"github.com/harunnryd/jarvis/pkg/runner"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	config   string
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "jarvis",
		Short:         "Voice assistant runtime",
		Version:       runner.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "config.yaml", "config file path")
	cmd.PersistentFlags().StringVarP(&flags.envFile, "env", "e", ".env", "env file path")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newRunCmd(flags), newSayCmd(flags), newHistoryCmd(flags))
	return cmd
}

// setup loads the env file and config and installs the process logger.
func (f *rootFlags) setup(cmd *cobra.Command) (jarvis.Config, *slog.Logger, error) {
	if err := godotenv.Load(f.envFile); err != nil && (cmd.Flags().Changed("env") || !errors.Is(err, fs.ErrNotExist)) {
		return jarvis.Config{}, nil, err
	}

	path := f.config
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := jarvis.LoadConfig(path)
	if err != nil {
		return jarvis.Config{}, nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	logger := logging.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	redact.SetEnabled(cfg.Privacy.RedactPII)
	return cfg, logger, nil
}
