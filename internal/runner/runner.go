// Package runner wires the loader, the worker pool and the result sink into
// one audit run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/williampepple1/website-auditor/internal/config"
	"github.com/williampepple1/website-auditor/internal/io"
	"github.com/williampepple1/website-auditor/internal/scraper"
	"github.com/williampepple1/website-auditor/internal/sink"
	"github.com/williampepple1/website-auditor/internal/worker"
	"github.com/williampepple1/website-auditor/pkg/logger"
	"github.com/williampepple1/website-auditor/pkg/models"
	"go.uber.org/zap"
)

// ErrRunCeiling is the cancellation cause when the run ceiling elapses
var ErrRunCeiling = errors.New("run ceiling reached")

// sitesPerMinutePerSlot is the throughput used for the start-of-run estimate
const sitesPerMinutePerSlot = 8

// Runner executes one audit run
type Runner struct {
	Config *config.AppConfig
	Reader *io.RecordReader

	prober scraper.Prober
	now    func() time.Time
}

// Option customizes a Runner
type Option func(*Runner)

// WithProber replaces the browser with another prober
func WithProber(p scraper.Prober) Option {
	return func(r *Runner) {
		r.prober = p
	}
}

// WithClock sets the clock used for output names and the summary
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// New creates a runner for the validated configuration
func New(cfg *config.AppConfig, opts ...Option) *Runner {
	r := &Runner{
		Config: cfg,
		Reader: io.NewRecordReader(cfg.IO.SkipSocialProfiles),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loads the input, audits every request and finalizes the output.
//
// Loader errors and a browser that cannot start abort the run before any
// output is produced. Per-site failures never do: each becomes a row.
// Cancelling ctx behaves like the run ceiling: no new request is claimed,
// probes in flight complete, and the rest is recorded as not attempted.
func (r *Runner) Run(ctx context.Context) (models.RunSummary, error) {
	cfg := r.Config
	runID := uuid.NewString()
	ctx = logger.WithFields(ctx, zap.String("runID", runID))

	table, err := r.Reader.Load(cfg.IO.InputFile)
	if err != nil {
		return models.RunSummary{}, err
	}
	r.logPlan(ctx, table)

	prober := r.prober
	if prober == nil {
		browser, err := scraper.NewBrowserScraper(ctx, cfg)
		if err != nil {
			return models.RunSummary{}, err
		}
		defer browser.Close()
		prober = browser
	}

	results, err := sink.New(sink.Options{
		RunID:      runID,
		InputFile:  cfg.IO.InputFile,
		ResultsDir: cfg.IO.ResultsDir,
		LogDir:     cfg.IO.LogsDir,
		Now:        r.now,
	})
	if err != nil {
		return models.RunSummary{}, fmt.Errorf("could not open result sink: %w", err)
	}
	results.Skip(ctx, table.Skipped)

	runCtx, cancel := r.ceiling(ctx)
	defer cancel()

	pool := worker.NewPool(prober, worker.Options{
		Concurrency: cfg.Scraper.Workers,
		Timeout:     cfg.Scraper.Timeout(),
		Grace:       cfg.Scraper.Grace,
		RateLimit:   cfg.Scraper.RateLimit,
		MaxRetries:  cfg.Scraper.MaxRetries,
		RetryDelay:  cfg.Scraper.RetryDelay,
	})

	var writeErr error
	completed := 0
	for rec := range pool.Run(runCtx, table.Requests) {
		completed++
		if writeErr == nil {
			writeErr = results.Record(ctx, rec.Request, rec.Outcome)
			if writeErr != nil {
				logger.Error(ctx, "could not record outcome", zap.Error(writeErr))
			}
		}
		if every := cfg.Scraper.ProgressEvery; every > 0 && completed%every == 0 {
			logger.Info(ctx, "progress",
				zap.Int("completed", completed), zap.Int("total", len(table.Requests)))
		}
	}

	unclaimed := pool.Unclaimed()
	detail := sink.NotAttemptedInterrupted
	if errors.Is(context.Cause(runCtx), ErrRunCeiling) {
		detail = sink.NotAttemptedCeiling
	}
	if len(unclaimed) > 0 {
		logger.Warn(ctx, "run stopped before every request was claimed",
			zap.Int("notAttempted", len(unclaimed)), zap.NamedError("reason", context.Cause(runCtx)))
	}
	for _, req := range unclaimed {
		if writeErr != nil {
			break
		}
		writeErr = results.RecordNotAttempted(ctx, req, detail)
	}

	summary, err := results.Finalize(ctx)
	return summary, errors.Join(writeErr, err)
}

// ceiling derives the claim context: it ends when the run ceiling elapses
// or the caller cancels
func (r *Runner) ceiling(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := r.Config.Scraper.RunCeiling; d > 0 {
		return context.WithTimeoutCause(ctx, d, ErrRunCeiling)
	}
	return context.WithCancel(ctx)
}

func (r *Runner) logPlan(ctx context.Context, table *io.Table) {
	workers := max(r.Config.Scraper.Workers, 1)
	minutes := float64(len(table.Requests)) / float64(sitesPerMinutePerSlot*workers)
	estimate := time.Duration(minutes * float64(time.Minute)).Round(time.Second)

	fields := []zap.Field{
		zap.String("input", table.Path),
		zap.Int("requests", len(table.Requests)),
		zap.Int("skipped", len(table.Skipped)),
		zap.Int("concurrency", r.Config.Scraper.Workers),
		zap.Duration("timeout", r.Config.Scraper.Timeout()),
		zap.Duration("estimate", estimate),
	}
	if c := r.Config.Scraper.RunCeiling; c > 0 {
		fields = append(fields, zap.Duration("ceiling", c))
		if estimate > c {
			logger.Warn(ctx, "estimated duration exceeds the run ceiling; the tail will not be attempted",
				zap.Duration("estimate", estimate), zap.Duration("ceiling", c))
		}
	}
	logger.Info(ctx, "input loaded", fields...)
}
