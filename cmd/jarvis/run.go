package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/harunnryd/jarvis/pkg/jarvis"
	"github.com/harunnryd/jarvis/pkg/runner"
	"github.com/spf13/cobra"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the assistant and wait for SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.setup(cmd)
			if err != nil {
				return err
			}
			engine, err := jarvis.Build(cfg, jarvis.DefaultProviders(), logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := runner.NewLifecycleRunner(engine, runner.Hooks{
				OnStart: engine.Start,
				OnStop:  func() { logger.Info("jarvis_stopped") },
			}, 0)
			logger.Info("jarvis_starting",
				"environment", cfg.Environment,
				"tts", cfg.Speech.Vendors.TTS.Provider,
				"stt", cfg.Listener.Vendors.STT.Provider,
				"bridge", cfg.Bridge.Enabled)
			return r.Run(ctx)
		},
	}
}
