package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/williampepple1/website-auditor/internal/scraper"
	"github.com/williampepple1/website-auditor/pkg/logger"
	"github.com/williampepple1/website-auditor/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrPoolUsed is reported by Err when Run is called more than once
var ErrPoolUsed = errors.New("worker pool already ran")

// DefaultGrace is how long a slot waits past the timeout when none is set
const DefaultGrace = 2 * time.Second

// Options configures a pool
type Options struct {
	// Concurrency is the number of slots
	Concurrency int
	// Timeout is the per-site budget handed to the prober
	Timeout time.Duration
	// Grace is added to Timeout before a slot abandons a probe
	Grace time.Duration
	// RateLimit is the pause a slot takes after each request
	RateLimit time.Duration
	// MaxRetries re-probes retryable failures in a fresh browser context
	MaxRetries int
	RetryDelay time.Duration
}

// job is a queued request and its position in the input
type job struct {
	index int
	req   models.AuditRequest
}

// Pool runs probes in a fixed number of slots pulling from one shared
// FIFO queue. A pool runs once.
type Pool struct {
	Prober  scraper.Prober
	Options Options

	used   atomic.Bool
	active atomic.Int32

	mu        sync.Mutex
	unclaimed []job
	err       error
}

// NewPool creates a new worker pool
func NewPool(prober scraper.Prober, opts Options) *Pool {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	return &Pool{
		Prober:  prober,
		Options: opts,
	}
}

// Run probes every request and streams one record per claimed request on
// the returned channel, in completion order. The channel closes once every
// slot is idle and the queue is empty or no longer being claimed.
//
// Cancelling ctx stops slots from claiming new requests; probes already
// running are not interrupted. Requests left in the queue are available
// from Unclaimed after the channel closes.
func (p *Pool) Run(ctx context.Context, requests []models.AuditRequest) <-chan models.Record {
	results := make(chan models.Record, p.Options.Concurrency)
	if !p.used.CompareAndSwap(false, true) {
		p.mu.Lock()
		p.err = ErrPoolUsed
		p.mu.Unlock()
		close(results)
		return results
	}

	jobs := make(chan job, len(requests))
	p.addJobs(jobs, requests)

	go func() {
		p.dispatch(ctx, jobs, results)
		for j := range jobs {
			p.addUnclaimed(j)
		}
		close(results)
	}()

	return results
}

// addJobs queues all requests and closes the queue
func (p *Pool) addJobs(jobs chan<- job, requests []models.AuditRequest) {
	for i, req := range requests {
		jobs <- job{index: i, req: req}
	}
	close(jobs)
}

// dispatch takes requests off the queue in order and hands each to a free
// slot. The group limit is the slot count, so g.Go blocks while every slot
// is busy. It returns once all started slots are idle.
func (p *Pool) dispatch(ctx context.Context, jobs <-chan job, results chan<- models.Record) {
	var g errgroup.Group
	g.SetLimit(p.Options.Concurrency)

	for ctx.Err() == nil {
		j, ok := <-jobs
		if !ok {
			break
		}
		g.Go(func() error {
			return p.runJob(ctx, j, results)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Debug(ctx, "pool stopped claiming", zap.Error(err))
	}
}

// runJob is one slot turn: probe, hand the record over, then pause for the
// rate limit. A request whose slot frees up after the run was stopped goes
// back to the unclaimed list and reports the cancellation.
func (p *Pool) runJob(ctx context.Context, j job, results chan<- models.Record) error {
	if err := ctx.Err(); err != nil {
		p.addUnclaimed(j)
		return err
	}

	logger.Debug(ctx, "slot claimed request",
		zap.Int("row", j.req.Row), zap.String("website", j.req.Website))

	results <- models.Record{Request: j.req, Outcome: p.process(ctx, j.req)}

	if p.Options.RateLimit > 0 {
		select {
		case <-time.After(p.Options.RateLimit):
		case <-ctx.Done():
		}
	}
	return nil
}

// process probes req, retrying retryable failures. The recorded outcome is
// the last attempt's.
func (p *Pool) process(ctx context.Context, req models.AuditRequest) models.AuditOutcome {
	for attempt := 0; ; attempt++ {
		out := p.probeOnce(ctx, req)
		out.Retries = attempt
		if out.OK() || attempt >= p.Options.MaxRetries || !Retryable(out) {
			return out
		}

		logger.Debug(ctx, "retrying request",
			zap.Int("row", req.Row), zap.String("kind", out.Kind()), zap.Int("attempt", attempt+1))
		time.Sleep(p.Options.RetryDelay * time.Duration(attempt+1))
	}
}

// probeOnce runs a single probe and never waits longer than Timeout+Grace.
// The probe context is not derived from the run context: stopping the run
// does not interrupt a probe in flight.
func (p *Pool) probeOnce(ctx context.Context, req models.AuditRequest) models.AuditOutcome {
	p.active.Add(1)
	defer p.active.Add(-1)

	probeCtx, cancel := context.WithTimeout(logger.WithLogger(context.Background(), logger.Get(ctx)), p.Options.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan models.AuditOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- models.Fail(models.FailureUnknown, fmt.Sprintf("probe panic: %v", r))
			}
		}()
		done <- p.Prober.Probe(probeCtx, req, p.Options.Timeout)
	}()

	limit := p.Options.Timeout + p.Options.Grace
	timer := time.NewTimer(limit)
	defer timer.Stop()

	var out models.AuditOutcome
	select {
	case out = <-done:
		if out.Signals == nil && out.Failure == nil {
			out = models.Fail(models.FailureUnknown, "probe returned no outcome")
		}
	case <-timer.C:
		// the probe is abandoned; cancel releases its browser context
		out = models.Fail(models.FailureTimeout, fmt.Sprintf("probe did not return within %v", limit))
	}

	if out.Elapsed == 0 {
		out.Elapsed = time.Since(start)
	}
	return out
}

// Retryable reports whether a failure may succeed on a second attempt
func Retryable(out models.AuditOutcome) bool {
	if out.Failure == nil {
		return false
	}
	switch out.Failure.Kind {
	case models.FailureTimeout, models.FailureConnectionRefused, models.FailureNavigation:
		return true
	default:
		return false
	}
}

func (p *Pool) addUnclaimed(j job) {
	p.mu.Lock()
	p.unclaimed = append(p.unclaimed, j)
	p.mu.Unlock()
}

// Active returns the number of slots currently running a probe
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Unclaimed returns, in input order, the requests no slot claimed. It is
// complete once the channel returned by Run has closed.
func (p *Pool) Unclaimed() []models.AuditRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	sorted := make([]job, len(p.unclaimed))
	copy(sorted, p.unclaimed)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].index < sorted[b].index })

	reqs := make([]models.AuditRequest, len(sorted))
	for i, j := range sorted {
		reqs[i] = j.req
	}
	return reqs
}

// Err reports misuse of the pool, such as running it twice
func (p *Pool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
