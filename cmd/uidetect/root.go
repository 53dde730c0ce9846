package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	envPath    string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:           "uidetect",
		Short:         "Fan out UI element detection prompts to vision model endpoints",
		Long:          "uidetect sends one image and a locate prompt to multiple vision model endpoints in parallel, normalizes their answers into canonical detections, and records every run.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Missing .env is fine; explicit paths must exist.
			if envPath != "" {
				return godotenv.Load(envPath)
			}
			godotenv.Load()
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "uidetect.yaml", "path to config yaml")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", "path to .env file with API keys")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(historyCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	return cfg.Build()
}
