// Package refresher keeps configured keys warm by periodically re-running
// the freshness policy for each of them in the background.
package refresher

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cachebound/cachebound/internal/service"
)

// Job describes one resource's background refresh schedule.
type Job struct {
	// Resource is the resource class name.
	Resource string

	// Interval is the base re-evaluation interval.
	Interval time.Duration

	// Keys lists the keys kept warm.
	Keys []string
}

// Refresher runs the background refresh loops for all configured jobs.
type Refresher struct {
	svc  service.Service
	jobs []Job

	cancelFunc context.CancelFunc
	done       chan struct{}
}

// New creates a refresher over the given jobs.
func New(svc service.Service, jobs []Job) *Refresher {
	return &Refresher{
		svc:  svc,
		jobs: jobs,
		done: make(chan struct{}),
	}
}

// Start begins the refresh loops and blocks until the context is cancelled.
func (r *Refresher) Start(ctx context.Context) error {
	slog.Info("Starting background refresher", "job_count", len(r.jobs))

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel
	defer func() {
		close(r.done)
		slog.Info("Background refresher shutting down")
	}()

	var wg sync.WaitGroup
	for _, job := range r.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			r.runJob(loopCtx, job)
		}(job)
	}
	wg.Wait()
	return nil
}

// Stop gracefully stops the refresher.
func (r *Refresher) Stop() error {
	if r.cancelFunc != nil {
		slog.Info("Stopping background refresher")
		r.cancelFunc()
		<-r.done
	}
	return nil
}

// runJob is one resource's refresh loop. The interval is re-jittered on
// every tick to prevent refresh bursts from lining up across resources.
func (r *Refresher) runJob(ctx context.Context, job Job) {
	interval := jitteredInterval(job.Interval)
	slog.Info("Configured refresh loop",
		"resource", job.Resource,
		"base_interval", job.Interval,
		"actual_interval", interval,
		"key_count", len(job.Keys))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.refreshKeys(ctx, job)

	for {
		select {
		case <-ticker.C:
			r.refreshKeys(ctx, job)
			ticker.Reset(jitteredInterval(job.Interval))
		case <-ctx.Done():
			slog.Debug("Refresh loop stopping", "resource", job.Resource)
			return
		}
	}
}

// refreshKeys re-evaluates every warm key once. Policy-suppressed and
// failed refreshes are expected here; failures are logged and retried on
// the next tick.
func (r *Refresher) refreshKeys(ctx context.Context, job Job) {
	for _, key := range job.Keys {
		if ctx.Err() != nil {
			return
		}
		result, err := r.svc.Refresh(ctx, job.Resource, key, false)
		if err != nil {
			slog.Warn("Background refresh failed",
				"resource", job.Resource, "key", key, "error", err)
			continue
		}
		switch result.Outcome {
		case "failed":
			slog.Warn("Background refresh failed",
				"resource", job.Resource, "key", key, "error", result.Error)
		default:
			slog.Debug("Background refresh completed",
				"resource", job.Resource, "key", key, "outcome", result.Outcome)
		}
	}
}

// jitteredInterval applies a random offset of up to ±10% to the base
// interval so multiple instances do not hit upstreams simultaneously.
func jitteredInterval(base time.Duration) time.Duration {
	jitter := base / 10
	if jitter <= 0 {
		return base
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return base + offset
}
