package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
	"github.com/qs3c/lease_go_server/internal/pkg/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leasectl",
	Short: "Local tools for the lease document pipeline",
	Long:  "Runs OCR, routing and question analysis against a local file without the server or worker.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Log.Level = lvl
		}
		if _, err := logger.New(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "config.yaml", "path to config file")
	pf.String("log-level", "warn", "log level override")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
