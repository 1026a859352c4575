// Package main provides the CLI entrypoint for the website auditor.
// It loads configuration, initializes logging and runs one audit.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/williampepple1/website-auditor/internal/config"
	"github.com/williampepple1/website-auditor/internal/io"
	"github.com/williampepple1/website-auditor/internal/runner"
	"github.com/williampepple1/website-auditor/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auditor [input-file]",
		Short: "Audit business websites with a headless browser",
		Long: `auditor visits every website listed in a CSV/TSV or XLSX table with
headless Chrome and writes one result row per business: reachability,
HTTP status, TLS usage and validity, response time, final URL and title.

The input needs business_name and website columns; city is optional.
Rows without a website are skipped. Per-site failures are recorded as rows,
so the run only fails when the input or the browser is unusable.

Examples:
  auditor input/businesses.csv
  auditor -i businesses.xlsx -n 3 -t 15 --ceiling 5h30m
  AUDIT_CONCURRENCY=2 auditor -c audit.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runAudit,
	}

	cmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	cmd.Flags().StringP("input", "i", "", "Input table (.csv, .tsv, .txt, .xlsx)")
	cmd.Flags().IntP("concurrency", "n", config.MinWorkers, "Number of concurrent browser slots (1-3)")
	cmd.Flags().IntP("timeout", "t", 10, "Per-site timeout in seconds (5-30)")
	cmd.Flags().Duration("ceiling", 0, "Wall-clock budget for the whole run (0 = none)")
	cmd.Flags().String("results-dir", "output", "Directory for result tables")
	cmd.Flags().String("logs-dir", "logs", "Directory for diagnostic logs")
	cmd.Flags().Int("retries", 0, "Retries for timeouts and connection failures")
	cmd.Flags().Bool("skip-social", false, "Skip rows whose website is a social or directory profile")
	cmd.Flags().Bool("mobile", false, "Render pages with a mobile viewport")
	cmd.Flags().Bool("screenshots", false, "Capture failed and non-2xx pages into <logs-dir>/screenshots")
	cmd.Flags().String("environment", "", "Logging environment (development or production)")

	return cmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return err
	}

	applyFlags(cmd, cfg)
	if len(args) == 1 {
		cfg.IO.InputFile = args[0]
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return err
	}

	if err := os.MkdirAll(cfg.IO.LogsDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logs directory: %v\n", err)
		return err
	}
	logFile := filepath.Join(cfg.IO.LogsDir, fmt.Sprintf("audit_%s.log", time.Now().Format("20060102_150405")))
	flush, err := logger.Setup(cfg.Environment, logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := runner.New(cfg).Run(ctx)
	if err != nil {
		var loadErr *io.LoadError
		if errors.As(err, &loadErr) {
			logger.Error(ctx, "could not load input", zap.Error(err))
		} else {
			logger.Error(ctx, "audit run failed", zap.Error(err))
		}
		return err
	}

	fmt.Printf("Audited %d sites: %d succeeded, %d failed, %d skipped\n",
		summary.Total, summary.Succeeded, summary.FailedTotal(), summary.Skipped)
	fmt.Printf("Results saved to %s\n", summary.OutputFile)
	return nil
}

// applyFlags overrides configuration values with flags set on the command line
func applyFlags(cmd *cobra.Command, cfg *config.AppConfig) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.IO.InputFile, _ = flags.GetString("input")
	}
	if flags.Changed("concurrency") {
		cfg.Scraper.Workers, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("timeout") {
		cfg.Scraper.TimeoutSeconds, _ = flags.GetInt("timeout")
	}
	if flags.Changed("ceiling") {
		cfg.Scraper.RunCeiling, _ = flags.GetDuration("ceiling")
	}
	if flags.Changed("results-dir") {
		cfg.IO.ResultsDir, _ = flags.GetString("results-dir")
	}
	if flags.Changed("logs-dir") {
		cfg.IO.LogsDir, _ = flags.GetString("logs-dir")
	}
	if flags.Changed("retries") {
		cfg.Scraper.MaxRetries, _ = flags.GetInt("retries")
	}
	if flags.Changed("skip-social") {
		cfg.IO.SkipSocialProfiles, _ = flags.GetBool("skip-social")
	}
	if flags.Changed("mobile") {
		cfg.Browser.MobileView, _ = flags.GetBool("mobile")
		if cfg.Browser.MobileView && cfg.Browser.UserAgent == config.DefaultUserAgents[0] {
			cfg.Browser.UserAgent = config.MobileUserAgent
		}
	}
	if flags.Changed("screenshots") {
		cfg.Browser.Screenshot, _ = flags.GetBool("screenshots")
	}
	if flags.Changed("environment") {
		cfg.Environment, _ = flags.GetString("environment")
	}
}
