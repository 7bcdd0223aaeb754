package retry

import (
	"testing"
	"time"
)

func TestEligibleFirstAttempt(t *testing.T) {
	p := DefaultPolicy()
	d := p.Eligible(0, nil, time.Now())
	if !d.Eligible || d.Exhausted {
		t.Fatalf("fresh job must be eligible, got %+v", d)
	}
}

func TestExhaustedAtMaxAttempts(t *testing.T) {
	p := DefaultPolicy()
	last := time.Now().Add(-24 * time.Hour)
	d := p.Eligible(2, &last, time.Now())
	if !d.Exhausted {
		t.Fatalf("expected exhausted at max attempts, got %+v", d)
	}
	if d.Wait != 0 {
		t.Fatalf("exhausted decision must not carry a wait, got %v", d.Wait)
	}
}

func TestBackoffWindow(t *testing.T) {
	p := Policy{MaxAttempts: 3, Backoff: []time.Duration{15 * time.Minute, 120 * time.Minute}}
	now := time.Unix(1700000000, 0).UTC()

	tests := []struct {
		name     string
		attempts int
		since    time.Duration
		eligible bool
	}{
		{"first retry inside window", 1, 5 * time.Minute, false},
		{"first retry after window", 1, 16 * time.Minute, true},
		{"second retry inside window", 2, 60 * time.Minute, false},
		{"second retry after window", 2, 121 * time.Minute, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			last := now.Add(-tc.since)
			d := p.Eligible(tc.attempts, &last, now)
			if d.Eligible != tc.eligible {
				t.Fatalf("attempts=%d since=%v: got %+v", tc.attempts, tc.since, d)
			}
			if !tc.eligible && d.Wait <= 0 {
				t.Fatalf("delayed decision must report remaining wait, got %+v", d)
			}
		})
	}
}

func TestBackoffTableCapsAtLastEntry(t *testing.T) {
	p := Policy{MaxAttempts: 10, Backoff: []time.Duration{15 * time.Minute}}
	now := time.Unix(1700000000, 0).UTC()

	// Attempt 5 reuses the single entry.
	last := now.Add(-20 * time.Minute)
	if d := p.Eligible(5, &last, now); !d.Eligible {
		t.Fatalf("expected eligible with capped backoff, got %+v", d)
	}
	last = now.Add(-10 * time.Minute)
	if d := p.Eligible(5, &last, now); d.Eligible {
		t.Fatalf("expected delay with capped backoff, got %+v", d)
	}
}

func TestParseBackoff(t *testing.T) {
	got, err := ParseBackoff("15,120")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[0] != 15*time.Minute || got[1] != 120*time.Minute {
		t.Fatalf("unexpected table: %v", got)
	}

	if _, err := ParseBackoff(""); err == nil {
		t.Fatalf("empty table must error")
	}
	if _, err := ParseBackoff("15,abc"); err == nil {
		t.Fatalf("non-numeric entry must error")
	}
	if _, err := ParseBackoff("-5"); err == nil {
		t.Fatalf("negative entry must error")
	}
}
