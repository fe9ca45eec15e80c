package main

import (
	"os"

	"github.com/Wyydra/huddle/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfg        config.Config
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Multi-party video meeting signaling relay and headless participant",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "console or json")

	rootCmd.AddCommand(newServeCmd(), newCallCmd(), newCreateCmd())
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("huddle failed")
		os.Exit(1)
	}
}

// finishConfig applies command flags, validates and installs the logger.
func finishConfig(apply func(*config.Config)) error {
	if apply != nil {
		apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogger(cfg.Log)
	return nil
}
