package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/i474232898/solar-data-aggregation/internal/config"
	"github.com/i474232898/solar-data-aggregation/internal/logger"
)

var (
	envFile string

	cfg       *config.AppConfig
	appLogger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "solar-data-aggregation",
	Short: "Solar inverter telemetry collector and query API",
	Long: `Polls the solar portal, enriches each reading with UV and temperature,
stores the time series and serves rolling averages and history.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envErr := config.LoadDotEnv(envFiles()...)

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded

		appLogger, err = logger.Setup(cfg.LogFile, cfg.LogMode)
		if err != nil {
			return fmt.Errorf("failed to set up logger: %w", err)
		}
		if envErr != nil {
			appLogger.Info("no .env file loaded", zap.Error(envErr))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appLogger != nil {
			_ = appLogger.Sync()
		}
	},
}

func envFiles() []string {
	if envFile == "" {
		return nil
	}
	return []string{envFile}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default is ./.env)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
