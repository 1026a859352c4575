package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/williampepple1/website-auditor/internal/scraper"
	"github.com/williampepple1/website-auditor/pkg/models"
)

func makeRequests(n int) []models.AuditRequest {
	reqs := make([]models.AuditRequest, n)
	for i := range reqs {
		reqs[i] = models.AuditRequest{
			BusinessName: fmt.Sprintf("Business %d", i+1),
			Website:      fmt.Sprintf("site%d.example", i+1),
			Row:          i + 1,
		}
	}
	return reqs
}

func ok() models.AuditOutcome {
	return models.Success(models.Signals{Reachable: true, FinalURL: "https://ok.example/"})
}

func collect(ch <-chan models.Record) []models.Record {
	var records []models.Record
	for rec := range ch {
		records = append(records, rec)
	}
	return records
}

func TestPoolProbesEveryRequestOnce(t *testing.T) {
	t.Parallel()

	var calls sync.Map
	prober := scraper.ProberFunc(func(_ context.Context, req models.AuditRequest, _ time.Duration) models.AuditOutcome {
		n, _ := calls.LoadOrStore(req.Website, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)
		return ok()
	})

	reqs := makeRequests(50)
	pool := NewPool(prober, Options{Concurrency: 3, Timeout: time.Second})
	records := collect(pool.Run(context.Background(), reqs))

	require.Len(t, records, len(reqs))
	seen := make(map[int]bool, len(records))
	for _, rec := range records {
		assert.False(t, seen[rec.Request.Row], "row %d recorded twice", rec.Request.Row)
		seen[rec.Request.Row] = true
		assert.True(t, rec.Outcome.OK())
	}
	for _, req := range reqs {
		n, found := calls.Load(req.Website)
		require.True(t, found, req.Website)
		assert.Equal(t, int32(1), n.(*atomic.Int32).Load(), req.Website)
	}
	assert.Empty(t, pool.Unclaimed())
	assert.NoError(t, pool.Err())
	assert.Zero(t, pool.Active())
}

func TestPoolRespectsConcurrency(t *testing.T) {
	t.Parallel()

	var current, peak atomic.Int32
	prober := scraper.ProberFunc(func(context.Context, models.AuditRequest, time.Duration) models.AuditOutcome {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return ok()
	})

	pool := NewPool(prober, Options{Concurrency: 3, Timeout: time.Second})
	records := collect(pool.Run(context.Background(), makeRequests(30)))

	assert.Len(t, records, 30)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestPoolRunsSlotsInParallel(t *testing.T) {
	t.Parallel()

	prober := scraper.ProberFunc(func(context.Context, models.AuditRequest, time.Duration) models.AuditOutcome {
		time.Sleep(300 * time.Millisecond)
		return ok()
	})

	pool := NewPool(prober, Options{Concurrency: 3, Timeout: 5 * time.Second})
	start := time.Now()
	records := collect(pool.Run(context.Background(), makeRequests(9)))
	elapsed := time.Since(start)

	assert.Len(t, records, 9)
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second, "nine 300ms probes on three slots should take about 900ms")
}

func TestPoolAbandonsHungProbe(t *testing.T) {
	t.Parallel()

	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })

	prober := scraper.ProberFunc(func(_ context.Context, req models.AuditRequest, _ time.Duration) models.AuditOutcome {
		if req.Row == 1 {
			<-hang
		}
		return ok()
	})

	pool := NewPool(prober, Options{Concurrency: 1, Timeout: 100 * time.Millisecond, Grace: 100 * time.Millisecond})
	start := time.Now()
	records := collect(pool.Run(context.Background(), makeRequests(2)))

	require.Len(t, records, 2)
	assert.Less(t, time.Since(start), time.Second)

	hung := records[0]
	assert.Equal(t, 1, hung.Request.Row)
	require.NotNil(t, hung.Outcome.Failure)
	assert.Equal(t, models.FailureTimeout, hung.Outcome.Failure.Kind)
	assert.GreaterOrEqual(t, hung.Outcome.Elapsed, 200*time.Millisecond)

	assert.True(t, records[1].Outcome.OK(), "the slot keeps working after abandoning a probe")
}

func TestPoolStopsClaimingWhenCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prober := scraper.ProberFunc(func(probeCtx context.Context, _ models.AuditRequest, _ time.Duration) models.AuditOutcome {
		cancel()
		// a probe in flight is not interrupted by stopping the run
		select {
		case <-probeCtx.Done():
			return models.Fail(models.FailureUnknown, "probe interrupted")
		case <-time.After(50 * time.Millisecond):
			return ok()
		}
	})

	reqs := makeRequests(5)
	pool := NewPool(prober, Options{Concurrency: 1, Timeout: time.Second})
	records := collect(pool.Run(ctx, reqs))

	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Request.Row)
	assert.True(t, records[0].Outcome.OK())
	assert.Equal(t, reqs[1:], pool.Unclaimed())
}

func TestPoolCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	prober := scraper.ProberFunc(func(context.Context, models.AuditRequest, time.Duration) models.AuditOutcome {
		calls.Add(1)
		return ok()
	})

	reqs := makeRequests(4)
	pool := NewPool(prober, Options{Concurrency: 3, Timeout: time.Second})
	records := collect(pool.Run(ctx, reqs))

	assert.Empty(t, records)
	assert.Zero(t, calls.Load())
	assert.Equal(t, reqs, pool.Unclaimed())
}

func TestPoolRunsOnce(t *testing.T) {
	t.Parallel()

	pool := NewPool(scraper.ProberFunc(func(context.Context, models.AuditRequest, time.Duration) models.AuditOutcome {
		return ok()
	}), Options{Concurrency: 2, Timeout: time.Second})

	assert.Len(t, collect(pool.Run(context.Background(), makeRequests(3))), 3)
	assert.NoError(t, pool.Err())

	assert.Empty(t, collect(pool.Run(context.Background(), makeRequests(3))))
	assert.ErrorIs(t, pool.Err(), ErrPoolUsed)
}

func TestPoolEmptyInput(t *testing.T) {
	t.Parallel()

	pool := NewPool(scraper.ProberFunc(func(context.Context, models.AuditRequest, time.Duration) models.AuditOutcome {
		t.Error("no probe expected")
		return ok()
	}), Options{Concurrency: 3, Timeout: time.Second})

	assert.Empty(t, collect(pool.Run(context.Background(), nil)))
	assert.Empty(t, pool.Unclaimed())
}

func TestPoolRecoversFromMisbehavingProbers(t *testing.T) {
	t.Parallel()

	prober := scraper.ProberFunc(func(_ context.Context, req models.AuditRequest, _ time.Duration) models.AuditOutcome {
		switch req.Row {
		case 1:
			panic("boom")
		case 2:
			return models.AuditOutcome{}
		default:
			return ok()
		}
	})

	pool := NewPool(prober, Options{Concurrency: 1, Timeout: time.Second})
	records := collect(pool.Run(context.Background(), makeRequests(3)))

	require.Len(t, records, 3)
	for _, rec := range records[:2] {
		require.NotNil(t, rec.Outcome.Failure, "row %d", rec.Request.Row)
		assert.Equal(t, models.FailureUnknown, rec.Outcome.Failure.Kind)
	}
	assert.Contains(t, records[0].Outcome.Failure.Detail, "boom")
	assert.True(t, records[2].Outcome.OK())
}

func TestPoolRetries(t *testing.T) {
	t.Parallel()

	var refused, dns atomic.Int32
	prober := scraper.ProberFunc(func(_ context.Context, req models.AuditRequest, _ time.Duration) models.AuditOutcome {
		switch req.Row {
		case 1:
			if refused.Add(1) < 3 {
				return models.Fail(models.FailureConnectionRefused, "net::ERR_CONNECTION_REFUSED")
			}
			return ok()
		default:
			dns.Add(1)
			return models.Fail(models.FailureDNS, "net::ERR_NAME_NOT_RESOLVED")
		}
	})

	pool := NewPool(prober, Options{Concurrency: 1, Timeout: time.Second, MaxRetries: 2, RetryDelay: time.Millisecond})
	records := collect(pool.Run(context.Background(), makeRequests(2)))

	require.Len(t, records, 2)
	assert.True(t, records[0].Outcome.OK())
	assert.Equal(t, 2, records[0].Outcome.Retries)
	assert.Equal(t, int32(3), refused.Load())

	assert.Equal(t, models.FailureDNS, records[1].Outcome.Failure.Kind)
	assert.Zero(t, records[1].Outcome.Retries)
	assert.Equal(t, int32(1), dns.Load(), "dns errors are not retried")
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, Retryable(ok()))
	assert.True(t, Retryable(models.Fail(models.FailureTimeout, "")))
	assert.True(t, Retryable(models.Fail(models.FailureConnectionRefused, "")))
	assert.True(t, Retryable(models.Fail(models.FailureNavigation, "")))
	assert.False(t, Retryable(models.Fail(models.FailureDNS, "")))
	assert.False(t, Retryable(models.Fail(models.FailureTLS, "")))
	assert.False(t, Retryable(models.Fail(models.FailureUnknown, "")))
}
