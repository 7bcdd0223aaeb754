package verify

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("verify: not found")
	// ErrInvalidState is returned when a mutation would violate the job state
	// machine (e.g. starting a call for a non-pending job, or a job that
	// already has an open attempt).
	ErrInvalidState = errors.New("verify: invalid state")
)

// Store is the persistence contract for jobs and call attempts.
//
// The store is the single source of truth for job state. Mutations of job
// status and attempt_count must be atomic with respect to concurrent webhook
// delivery and admin bulk operations; the Postgres implementation takes a
// row lock on the job, the in-memory one holds a mutex.
type Store interface {
	GetJob(ctx context.Context, jobID string) (Job, error)

	// ListPending returns pending jobs ordered by priority (desc) then
	// creation time (asc, first in first out).
	ListPending(ctx context.Context, limit int) ([]Job, error)

	// MarkCalling transitions a pending job to calling and opens a new
	// attempt in one atomic step: it verifies the job is pending with no open
	// attempt, increments attempt_count, stamps last_attempt_at, records the
	// provider call id on the job and inserts the open attempt row. The
	// provider call id is durably associated before this method returns.
	MarkCalling(ctx context.Context, p MarkCallingParams) (Job, Attempt, error)

	// MarkFailed records a placement failure. The job carries the message
	// and moves to failed; no attempt row is touched.
	MarkFailed(ctx context.Context, jobID, message string) error

	// FindOpenAttempt locates the open attempt for a vendor call id.
	// Closed attempts are not returned; duplicate webhook delivery therefore
	// resolves to (Attempt{}, false, nil).
	FindOpenAttempt(ctx context.Context, providerCallID string) (Attempt, bool, error)

	HasOpenAttempt(ctx context.Context, jobID string) (bool, error)

	// CloseAttempt closes the attempt and applies the job-level result in
	// one atomic step.
	CloseAttempt(ctx context.Context, p CloseAttemptParams) (Job, error)

	AttemptsForJob(ctx context.Context, jobID string) ([]Attempt, error)
}

type MarkCallingParams struct {
	JobID          string
	ProviderCallID string
	Provider       string
	FromNumber     string
	Now            time.Time
}

type CloseAttemptParams struct {
	ProviderCallID string
	EndedAt        time.Time
	DurationSeconds int
	VendorStatus   string
	Outcome        Outcome

	// NextStatus is the job status after this result is applied; the caller
	// (orchestrator) decides between a terminal status and pending per the
	// retry policy.
	NextStatus Status

	Summary    string
	Transcript string
	AgentNotes string
	LastError  string
}
