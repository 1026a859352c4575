// Package sink is the single writer of audit results. Outcomes arrive from
// concurrent probe slots; the sink serializes them into the output table,
// keeps the run counters and produces the run summary.
package sink

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/williampepple1/website-auditor/internal/io"
	"github.com/williampepple1/website-auditor/pkg/logger"
	"github.com/williampepple1/website-auditor/pkg/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrFinalized is returned when the sink is used after Finalize
var ErrFinalized = errors.New("result sink already finalized")

// Failure details for requests the run never reached
const (
	NotAttemptedCeiling     = "not attempted: run ceiling reached"
	NotAttemptedInterrupted = "not attempted: run interrupted"
)

// File names written to the logs directory
const (
	SummaryFile = "summary.yaml"
	MetricsFile = "metrics.prom"
)

// latencyBuckets are histogram buckets in seconds sized for page loads
var latencyBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30} //nolint: gochecknoglobals

// Options configures a sink
type Options struct {
	RunID      string
	InputFile  string
	ResultsDir string
	LogDir     string
	// Now is the clock; time.Now when nil
	Now func() time.Time
}

// Sink accumulates outcomes and writes them incrementally
type Sink struct {
	mu        sync.Mutex
	writer    *io.ResultWriter
	summary   models.RunSummary
	finalized bool
	now       func() time.Time

	registry     *prometheus.Registry
	outcomes     *prometheus.CounterVec
	responseTime prometheus.Histogram
	probeTime    prometheus.Histogram
	skipped      prometheus.Counter
	runDuration  prometheus.Gauge
}

// New creates the output table and an empty summary
func New(opts Options) (*Sink, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	started := now()

	if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create logs directory: %w", err)
	}

	path := filepath.Join(opts.ResultsDir, fmt.Sprintf("audit_results_%s.csv", started.Format("20060102_150405")))
	writer, err := io.NewResultWriter(path)
	if err != nil {
		return nil, err
	}

	s := &Sink{
		writer: writer,
		now:    now,
		summary: models.RunSummary{
			RunID:      opts.RunID,
			InputFile:  opts.InputFile,
			OutputFile: path,
			LogDir:     opts.LogDir,
			StartedAt:  started,
			Failed:     make(map[models.FailureKind]int, len(models.FailureKinds)),
		},
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "website_audit_outcomes_total",
			Help: "Audit outcomes recorded, by outcome kind.",
		}, []string{"outcome"}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "website_audit_response_time_seconds",
			Help:    "Navigation start to load event for successfully audited sites.",
			Buckets: latencyBuckets,
		}),
		probeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "website_audit_probe_duration_seconds",
			Help:    "Wall time spent on each request, including failures.",
			Buckets: latencyBuckets,
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "website_audit_skipped_rows_total",
			Help: "Input rows excluded before probing.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "website_audit_run_duration_seconds",
			Help: "Wall time of the whole run.",
		}),
	}
	s.registry.MustRegister(s.outcomes, s.responseTime, s.probeTime, s.skipped, s.runDuration)

	// zero series so every kind shows up in the export
	s.outcomes.WithLabelValues("success")
	for _, kind := range models.FailureKinds {
		s.outcomes.WithLabelValues(string(kind))
	}

	return s, nil
}

// OutputFile is the path of the output table
func (s *Sink) OutputFile() string {
	return s.summary.OutputFile
}

// Record appends one row and updates the counters. It is safe to call
// from several goroutines; rows are written one at a time.
func (s *Sink) Record(ctx context.Context, req models.AuditRequest, out models.AuditOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recordLocked(ctx, req, out)
}

func (s *Sink) recordLocked(ctx context.Context, req models.AuditRequest, out models.AuditOutcome) error {
	if s.finalized {
		return ErrFinalized
	}

	if err := s.writer.WriteRecord(models.Record{Request: req, Outcome: out}); err != nil {
		return err
	}

	s.summary.Total++
	if out.OK() {
		s.summary.Succeeded++
		s.summary.Quality.Add(out.Signals.Quality)
		s.responseTime.Observe(float64(out.Signals.ResponseTimeMS) / 1000)
	} else {
		s.summary.Failed[models.FailureKind(out.Kind())]++
	}
	s.outcomes.WithLabelValues(out.Kind()).Inc()
	s.probeTime.Observe(out.Elapsed.Seconds())

	fields := []zap.Field{
		zap.Int("row", req.Row),
		zap.String("business", req.BusinessName),
		zap.String("website", req.Website),
		zap.String("outcome", out.Kind()),
		zap.Duration("elapsed", out.Elapsed),
	}
	if out.Retries > 0 {
		fields = append(fields, zap.Int("retries", out.Retries))
	}
	if out.Failure != nil {
		fields = append(fields, zap.String("detail", out.Failure.Detail))
	} else {
		if out.Signals.StatusCode != nil {
			fields = append(fields, zap.Int("status", *out.Signals.StatusCode))
		}
		if q := out.Signals.Quality; q != nil {
			fields = append(fields,
				zap.Bool("mobileResponsive", q.MobileResponsive),
				zap.Bool("modernDesign", q.ModernDesign),
				zap.Strings("techStack", q.TechStack))
		}
	}
	if out.Screenshot != "" {
		fields = append(fields, zap.String("screenshot", out.Screenshot))
	}
	logger.Info(ctx, "request audited", fields...)

	return nil
}

// RecordNotAttempted records a request the run never reached as an
// unknown failure with the given detail so totals still reconcile
func (s *Sink) RecordNotAttempted(ctx context.Context, req models.AuditRequest, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recordLocked(ctx, req, models.Fail(models.FailureUnknown, detail)); err != nil {
		return err
	}
	s.summary.NotAttempted++
	return nil
}

// Skip counts input rows excluded before probing. They get no output row.
func (s *Sink) Skip(ctx context.Context, rows []models.SkippedRow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		s.summary.Skipped++
		s.skipped.Inc()
		logger.Info(ctx, "row skipped", zap.Int("row", row.Row), zap.String("reason", row.Reason))
	}
}

// Summary returns a copy of the counters so far
func (s *Sink) Summary() models.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copySummary()
}

func (s *Sink) copySummary() models.RunSummary {
	sum := s.summary
	sum.Failed = make(map[models.FailureKind]int, len(s.summary.Failed))
	for k, v := range s.summary.Failed {
		sum.Failed[k] = v
	}
	sum.Quality.TechStack = maps.Clone(s.summary.Quality.TechStack)
	return sum
}

// Finalize closes the output table, writes the summary and metrics to the
// logs directory and returns the summary. It may be called once.
func (s *Sink) Finalize(ctx context.Context) (models.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return models.RunSummary{}, ErrFinalized
	}
	s.finalized = true

	s.summary.FinishedAt = s.now()
	s.summary.Elapsed = s.summary.FinishedAt.Sub(s.summary.StartedAt)
	s.runDuration.Set(s.summary.Elapsed.Seconds())
	summary := s.copySummary()

	var errs []error
	if err := s.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := writeSummary(filepath.Join(summary.LogDir, SummaryFile), summary); err != nil {
		errs = append(errs, err)
	}
	if err := prometheus.WriteToTextfile(filepath.Join(summary.LogDir, MetricsFile), s.registry); err != nil {
		errs = append(errs, fmt.Errorf("could not write metrics: %w", err))
	}

	fields := []zap.Field{
		zap.String("runID", summary.RunID),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.FailedTotal()),
		zap.Int("skipped", summary.Skipped),
		zap.Int("notAttempted", summary.NotAttempted),
		zap.Duration("elapsed", summary.Elapsed),
		zap.String("output", summary.OutputFile),
	}
	for _, kind := range models.FailureKinds {
		fields = append(fields, zap.Int(string(kind), summary.Failed[kind]))
	}
	fields = append(fields,
		zap.Int("mobileResponsive", summary.Quality.MobileResponsive),
		zap.Int("modernDesign", summary.Quality.ModernDesign))
	logger.Info(ctx, "run summary", fields...)

	return summary, errors.Join(errs...)
}

func writeSummary(path string, summary models.RunSummary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("could not encode summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write summary: %w", err)
	}
	return nil
}
