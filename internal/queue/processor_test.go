package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-verifier/internal/classify"
	"account-verifier/internal/config"
	"account-verifier/internal/monitor"
	"account-verifier/internal/orchestrator"
	"account-verifier/internal/settings"
	"account-verifier/internal/telephony"
	"account-verifier/internal/verify"
)

type scriptedProvider struct {
	mu      sync.Mutex
	calls   int
	hangups int
	nextID  int
}

func (p *scriptedProvider) Name() string     { return "twilio" }
func (p *scriptedProvider) CallerID() string { return "+15550199" }

func (p *scriptedProvider) Call(context.Context, telephony.CallRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.nextID++
	return fmt.Sprintf("call-%d", p.nextID), nil
}

func (p *scriptedProvider) Hangup(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hangups++
	return nil
}

func (p *scriptedProvider) Balance(context.Context) (telephony.Balance, error) {
	return telephony.Balance{Amount: 50, Currency: "USD"}, nil
}

func (p *scriptedProvider) hangupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hangups
}

type singleProvider struct{ p *scriptedProvider }

func (s singleProvider) Active(context.Context) (telephony.Provider, error) { return s.p, nil }
func (s singleProvider) ByName(context.Context, string) (telephony.Provider, error) {
	return s.p, nil
}

type harness struct {
	repo     *verify.MemoryRepo
	provider *scriptedProvider
	orch     *orchestrator.Orchestrator
	proc     *Processor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	calls := config.CallConfig{
		MaxAttempts:         2,
		BackoffMinutes:      "15,120",
		CallTimeout:         2 * time.Second,
		LowBalanceThreshold: 5.0,
		MaxConcurrentCalls:  1,
		Simulated:           true,
	}
	repo := verify.NewMemoryRepo()
	runtime := settings.NewRuntime(settings.NewMemoryStore(), config.Config{Calls: calls}, nil)
	provider := &scriptedProvider{}
	orch := orchestrator.New(repo, singleProvider{p: provider}, runtime, classify.NewKeywordClassifier(), monitor.New(time.Minute, nil), nil, nil)

	proc := NewProcessor(repo, orch, runtime, nil)
	proc.pollInterval = 5 * time.Millisecond
	return &harness{repo: repo, provider: provider, orch: orch, proc: proc}
}

// respondToCalls plays the vendor: whenever a job is calling, deliver a final
// webhook for it.
func (h *harness) respondToCalls(ctx context.Context, outcome verify.Outcome) {
	go func() {
		seen := make(map[string]bool)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
			for _, id := range []string{"job-1", "job-2", "job-3"} {
				job, err := h.repo.GetJob(ctx, id)
				if err != nil || job.Status != verify.StatusCalling || seen[job.ProviderCallID] {
					continue
				}
				seen[job.ProviderCallID] = true
				_ = h.orch.HandleResult(ctx, telephony.CallResult{
					ProviderCallID: job.ProviderCallID,
					VendorStatus:   "completed",
					Final:          true,
					Outcome:        outcome,
				})
			}
		}
	}()
}

func TestRunProcessesJobsSequentially(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := newHarness(t)
	h.repo.Put(verify.Job{ID: "job-1", CompanyPhone: "+15550100"})
	h.repo.Put(verify.Job{ID: "job-2", CompanyPhone: "+15550101"})
	h.respondToCalls(ctx, verify.OutcomeAccountFound)

	stats, err := h.proc.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Attempted)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 0, stats.Skipped)

	for _, id := range []string{"job-1", "job-2"} {
		job, err := h.repo.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, verify.StatusAccountFound, job.Status, id)
	}
}

func TestRunSkipsJobsInsideBackoffWindow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := newHarness(t)
	recent := time.Now().Add(-time.Minute)
	h.repo.Put(verify.Job{ID: "job-1", CompanyPhone: "+15550100", AttemptCount: 1, LastAttemptAt: &recent})
	h.repo.Put(verify.Job{ID: "job-2", CompanyPhone: "+15550101"})
	h.respondToCalls(ctx, verify.OutcomeAccountNotFound)

	stats, err := h.proc.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Attempted)

	delayed, err := h.repo.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, delayed.AttemptCount, "skipped job must not consume an attempt")
}

func TestRunHonorsMaxJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := newHarness(t)
	h.repo.Put(verify.Job{ID: "job-1", CompanyPhone: "+15550100"})
	h.repo.Put(verify.Job{ID: "job-2", CompanyPhone: "+15550101"})
	h.repo.Put(verify.Job{ID: "job-3", CompanyPhone: "+15550102"})
	h.respondToCalls(ctx, verify.OutcomeAccountFound)

	stats, err := h.proc.Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Attempted)
}

func TestStopHangsUpInFlightCallExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.repo.Put(verify.Job{ID: "job-1", CompanyPhone: "+15550100"})
	// No webhook responder: the call stays in flight until cancelled.

	sup := NewSupervisor(h.proc)
	require.NoError(t, sup.Start(0))

	// Wait for the call to be placed.
	require.Eventually(t, func() bool {
		job, err := h.repo.GetJob(context.Background(), "job-1")
		return err == nil && job.Status == verify.StatusCalling
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, sup.Stop(stopCtx))

	assert.Equal(t, 1, h.provider.hangupCount())
	assert.False(t, sup.Status().Running)

	// A second stop finds nothing running, and nothing more to hang up.
	assert.ErrorIs(t, sup.Stop(stopCtx), ErrNotRunning)
	assert.Equal(t, 1, h.provider.hangupCount())
}

func TestSupervisorRejectsDoubleStart(t *testing.T) {
	h := newHarness(t)
	h.repo.Put(verify.Job{ID: "job-1", CompanyPhone: "+15550100"})

	sup := NewSupervisor(h.proc)
	require.NoError(t, sup.Start(0))
	assert.ErrorIs(t, sup.Start(0), ErrAlreadyRunning)

	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = sup.Stop(stopCtx)
}
