package main

import (
	"strings"

	"github.com/harunnryd/jarvis/pkg/audio"
	"github.com/harunnryd/jarvis/pkg/jarvis"
	"github.com/harunnryd/jarvis/pkg/providers/mock"
	"github.com/harunnryd/jarvis/pkg/speech"
	"github.com/spf13/cobra"
)

func newSayCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>",
		Short: "Speak text once through the configured voices",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.setup(cmd)
			if err != nil {
				return err
			}
			primary, fallback, err := jarvis.BuildSynthesizers(cfg, jarvis.DefaultProviders(), logger)
			if err != nil {
				return err
			}
			var player audio.Player = audio.NewSpeakerPlayer()
			if cfg.Audio.Output == "mock" {
				player = mock.NewPlayer()
			}

			engine := speech.New(speech.Options{
				Primary:  primary,
				Fallback: fallback,
				Player:   player,
				Logger:   logger,
			})
			defer engine.Close()
			return engine.SpeakAndWait(cmd.Context(), strings.Join(args, " "))
		},
	}
}
