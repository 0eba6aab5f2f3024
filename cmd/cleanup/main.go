package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
	"github.com/qs3c/lease_go_server/internal/database"
	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/model"
	"github.com/qs3c/lease_go_server/internal/pkg/cron"
	"github.com/qs3c/lease_go_server/internal/pkg/logger"
	"github.com/qs3c/lease_go_server/internal/repository"
)

var rootCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "One-off sweep of stale processing jobs and leftover OCR temp dirs",
	Long: `Fails processing jobs whose current attempt started longer ago than
jobs.stale_after (their worker is gone) and removes leftover OCR working
directories. Runs the same sweep the worker schedules, once.

Examples:
  cleanup --dry-run
  cleanup --config /etc/lease/config.yaml --stale-after 30m`,
	RunE:         runCleanup,
	SilenceUsage: true,
}

func init() {
	f := rootCmd.Flags()
	f.String("config", envOr("CONFIG_PATH", "config.yaml"), "path to config file")
	f.Bool("dry-run", false, "list stale jobs without failing them or deleting anything")
	f.Duration("stale-after", 0, "override jobs.stale_after")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	staleAfter, _ := cmd.Flags().GetDuration("stale-after")

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if staleAfter > 0 {
		cfg.Jobs.StaleAfter = staleAfter
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer zl.Sync()

	db, err := database.NewDB(&cfg.Database, zl)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	jobRepo := repository.NewJobRepository(db)
	machine := jobs.NewMachine(jobRepo, cfg.Jobs.MaxRetries, zl)
	sweeper := cron.NewService(machine, jobRepo, cfg.Jobs.StaleAfter, cfg.Jobs.CleanupInterval, zl)

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	stale, err := sweeper.SweepStale(ctx, dryRun)
	if err != nil {
		return fmt.Errorf("sweep stale jobs: %w", err)
	}

	cleaned := 0
	if !dryRun {
		cleaned = sweeper.CleanupTempDirs()
	}

	printSummary(cmd.OutOrStdout(), stale, cleaned, dryRun)
	zl.Info("cleanup finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("stale_jobs", len(stale)),
		zap.Int("temp_dirs", cleaned),
	)
	return nil
}

// printSummary 输出清理结果
func printSummary(w io.Writer, stale []*model.ProcessingJob, cleaned int, dryRun bool) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "Cleanup Summary")
	fmt.Fprintln(w, strings.Repeat("=", 60))

	for _, job := range stale {
		age := "unknown"
		if job.AttemptStartedAt != nil {
			age = time.Since(*job.AttemptStartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "  - %s %s (user %s, running %s)\n", job.ID, job.Filename, job.UserID, age)
	}

	if dryRun {
		fmt.Fprintf(w, "Stale jobs found: %d\n", len(stale))
		fmt.Fprintln(w, "DRY RUN MODE - nothing was changed")
	} else {
		fmt.Fprintf(w, "Stale jobs failed: %d\n", len(stale))
		fmt.Fprintf(w, "Temp dirs removed: %d\n", cleaned)
	}
	fmt.Fprintln(w, strings.Repeat("=", 60))
}
