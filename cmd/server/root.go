package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/config"
	"taamsimcha-backend/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "taamsimcha",
	Short: "Taam Simcha recipe platform backend",
	Long:  `Serves the recipe API, the AI chef chat and the background email worker.`,
	// Running the bare binary starts the server.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Development: cfg.IsDevelopment(),
	})
	return cfg, log, nil
}
