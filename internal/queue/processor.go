// Package queue works the backlog of pending verification jobs, strictly one
// call in flight at a time.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"account-verifier/internal/orchestrator"
	"account-verifier/internal/settings"
	"account-verifier/internal/verify"
)

// Stats summarizes one processor run.
type Stats struct {
	Attempted int `json:"attempted"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Processor drains pending jobs sequentially: initiate a call, wait for the
// job to leave the calling state, move on. Serial by design; companies being
// called share phone lines and patience.
type Processor struct {
	store   verify.Store
	orch    *orchestrator.Orchestrator
	runtime *settings.Runtime
	log     *slog.Logger

	pollInterval time.Duration
	batchSize    int

	mu           sync.Mutex
	inFlightCall string
}

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 50
)

func NewProcessor(store verify.Store, orch *orchestrator.Orchestrator, runtime *settings.Runtime, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		store:        store,
		orch:         orch,
		runtime:      runtime,
		log:          log,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
	}
}

// Run processes up to maxJobs pending jobs (0 means the whole batch). It
// returns when the backlog is drained, the cap is hit, or ctx is cancelled.
//
// A cancelled run hangs up its in-flight call, exactly once, before
// returning; the vendor's completion webhook or the timeout path settles the
// attempt afterwards.
func (p *Processor) Run(ctx context.Context, maxJobs int) (Stats, error) {
	var stats Stats
	defer p.hangupInFlight()

	limit := p.batchSize
	if maxJobs > 0 && maxJobs < limit {
		limit = maxJobs
	}

	jobs, err := p.store.ListPending(ctx, limit)
	if err != nil {
		return stats, err
	}
	p.log.Info("queue run starting", "pending", len(jobs), "max_jobs", maxJobs)

	now := time.Now().UTC()
	policy := p.runtime.RetryPolicy(ctx)

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if maxJobs > 0 && stats.Attempted >= maxJobs {
			break
		}

		// Jobs inside their backoff window are passed over without
		// consuming a slot in this run.
		if d := policy.Eligible(job.AttemptCount, job.LastAttemptAt, now); !d.Eligible {
			stats.Skipped++
			continue
		}

		stats.Attempted++
		if err := p.processOne(ctx, job.ID); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			stats.Errors++
			p.log.Error("processing job failed", "job_id", job.ID, "err", err)
			continue
		}
		stats.Completed++
	}

	p.log.Info("queue run finished",
		"attempted", stats.Attempted,
		"completed", stats.Completed,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
	)
	return stats, nil
}

func (p *Processor) processOne(ctx context.Context, jobID string) error {
	job, err := p.orch.Initiate(ctx, jobID, "")
	if err != nil {
		var notDue *orchestrator.RetryNotDueError
		switch {
		case errors.As(err, &notDue),
			errors.Is(err, orchestrator.ErrRetryExhausted),
			errors.Is(err, orchestrator.ErrJobTerminal),
			errors.Is(err, verify.ErrInvalidState):
			// The job moved under us between listing and initiation.
			p.log.Debug("job no longer eligible", "job_id", jobID, "reason", err)
			return nil
		}
		return err
	}

	p.setInFlight(job.ProviderCallID)
	err = p.waitForResult(ctx, job.ID, job.ProviderCallID)
	if err == nil {
		// Attempt settled; nothing left to hang up.
		p.setInFlight("")
	}
	return err
}

// waitForResult polls the store until the job leaves the calling state. The
// webhook handler does the actual state change; this loop only observes it.
func (p *Processor) waitForResult(ctx context.Context, jobID, callID string) error {
	deadline := time.Now().Add(p.runtime.CallTimeout())
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		job, err := p.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != verify.StatusCalling {
			return nil
		}
		if time.Now().After(deadline) {
			return p.orch.HandleTimeout(ctx, callID)
		}
	}
}

func (p *Processor) setInFlight(callID string) {
	p.mu.Lock()
	p.inFlightCall = callID
	p.mu.Unlock()
}

// hangupInFlight terminates the call left in flight by an aborted run. The
// in-flight slot is cleared before the hangup is issued, so a second caller
// finds nothing to do.
func (p *Processor) hangupInFlight() {
	p.mu.Lock()
	callID := p.inFlightCall
	p.inFlightCall = ""
	p.mu.Unlock()

	if callID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.log.Info("hanging up in-flight call on stop", "call_id", callID)
	if err := p.orch.Hangup(ctx, callID); err != nil {
		p.log.Warn("stop hangup failed", "call_id", callID, "err", err)
	}
}
