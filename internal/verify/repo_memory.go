package verify

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Store used by unit tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu       sync.Mutex
	jobs     map[string]Job
	attempts []Attempt
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{jobs: make(map[string]Job)}
}

// Put inserts or replaces a job. Test setup helper.
func (r *MemoryRepo) Put(j Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.Status == "" {
		j.Status = StatusPending
	}
	if j.AccountExists == "" {
		j.AccountExists = AccountUnknown
	}
	r.jobs[j.ID] = j
}

func (r *MemoryRepo) GetJob(ctx context.Context, jobID string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j, nil
}

func (r *MemoryRepo) ListPending(ctx context.Context, limit int) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Job
	for _, j := range r.jobs {
		if j.Status == StatusPending {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Priority != out[k].Priority {
			return out[i].Priority > out[k].Priority
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) MarkCalling(ctx context.Context, p MarkCallingParams) (Job, Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[p.JobID]
	if !ok {
		return Job{}, Attempt{}, ErrNotFound
	}
	if j.Status != StatusPending {
		return Job{}, Attempt{}, ErrInvalidState
	}
	for _, a := range r.attempts {
		if a.JobID == p.JobID && a.Open() {
			return Job{}, Attempt{}, ErrInvalidState
		}
	}

	now := p.Now.UTC()
	j.Status = StatusCalling
	j.AttemptCount++
	j.LastAttemptAt = &now
	j.ProviderCallID = p.ProviderCallID
	j.UpdatedAt = now
	r.jobs[p.JobID] = j

	a := Attempt{
		ID:             uuid.NewString(),
		JobID:          p.JobID,
		ProviderCallID: p.ProviderCallID,
		Provider:       p.Provider,
		Direction:      "outbound",
		FromNumber:     p.FromNumber,
		ToNumber:       j.CompanyPhone,
		InitiatedAt:    now,
		VendorStatus:   "initiated",
		SequenceNumber: j.AttemptCount,
		CreatedAt:      now,
	}
	r.attempts = append(r.attempts, a)
	return j, a, nil
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, jobID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.Status = StatusFailed
	j.LastError = message
	j.ProviderCallID = ""
	r.jobs[jobID] = j
	return nil
}

func (r *MemoryRepo) FindOpenAttempt(ctx context.Context, providerCallID string) (Attempt, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.ProviderCallID == providerCallID && a.Open() {
			return a, true, nil
		}
	}
	return Attempt{}, false, nil
}

func (r *MemoryRepo) HasOpenAttempt(ctx context.Context, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.JobID == jobID && a.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepo) CloseAttempt(ctx context.Context, p CloseAttemptParams) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, a := range r.attempts {
		if a.ProviderCallID == p.ProviderCallID && a.Open() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Job{}, ErrNotFound
	}

	ended := p.EndedAt.UTC()
	a := r.attempts[idx]
	a.EndedAt = &ended
	a.DurationSeconds = p.DurationSeconds
	a.VendorStatus = p.VendorStatus
	a.Outcome = p.Outcome
	r.attempts[idx] = a

	j, ok := r.jobs[a.JobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	j.Status = p.NextStatus
	if j.AccountExists == AccountUnknown || j.AccountExists == "" {
		if st := p.Outcome.AccountState(); st != AccountUnknown {
			j.AccountExists = st
		}
	}
	j.ProviderCallID = ""
	j.Summary = p.Summary
	j.Transcript = p.Transcript
	j.AgentNotes = p.AgentNotes
	j.LastError = p.LastError
	j.UpdatedAt = ended
	r.jobs[a.JobID] = j
	return j, nil
}

func (r *MemoryRepo) AttemptsForJob(ctx context.Context, jobID string) ([]Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Attempt
	for _, a := range r.attempts {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].InitiatedAt.After(out[k].InitiatedAt) })
	return out, nil
}
