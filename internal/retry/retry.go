// Package retry decides when a verification job is due for another call.
package retry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Policy controls retry scheduling for verification jobs.
//
// Backoff is an escalating-then-capped table: entry i applies after attempt
// i+1, and the last entry is reused for every attempt past the table's
// length.
type Policy struct {
	MaxAttempts int
	Backoff     []time.Duration
}

// DefaultPolicy mirrors the shipped configuration: two attempts, 15 minutes
// after the first failure.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		Backoff:     []time.Duration{15 * time.Minute, 120 * time.Minute},
	}
}

// Decision is the scheduler's answer for one job.
type Decision struct {
	Eligible bool

	// Exhausted means the job has consumed its retry budget; there is no
	// wait value because the job is finished, not merely delayed.
	Exhausted bool

	// Wait is the remaining delay when the job is delayed but not exhausted.
	Wait time.Duration
}

// Eligible applies the policy to a job's attempt history.
//
// attemptCount increments at initiation time, so a call that never receives
// a webhook still consumed a retry slot.
func (p Policy) Eligible(attemptCount int, lastAttemptAt *time.Time, now time.Time) Decision {
	if attemptCount >= p.MaxAttempts {
		return Decision{Exhausted: true}
	}
	if attemptCount == 0 || lastAttemptAt == nil || len(p.Backoff) == 0 {
		return Decision{Eligible: true}
	}

	idx := attemptCount - 1
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	next := lastAttemptAt.Add(p.Backoff[idx])
	if now.Before(next) {
		return Decision{Wait: next.Sub(now)}
	}
	return Decision{Eligible: true}
}

// ParseBackoff parses a comma-separated minutes list ("15,120") into a
// backoff table.
func ParseBackoff(s string) ([]time.Duration, error) {
	parts := strings.Split(s, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("retry: invalid backoff entry %q", part)
		}
		out = append(out, time.Duration(n)*time.Minute)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("retry: backoff table is empty")
	}
	return out, nil
}
