package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("queue: processor already running")
	ErrNotRunning     = errors.New("queue: processor not running")
)

// Status is the supervisor's externally visible state.
type Status struct {
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitzero"`
	LastRunAt time.Time `json:"last_run_at,omitzero"`
	LastStats Stats     `json:"last_stats"`
	LastError string    `json:"last_error,omitempty"`
}

// Supervisor owns the lifecycle of the single background processor run.
// Exactly one run may be active at a time; starting while running is
// rejected rather than queued.
type Supervisor struct {
	proc *Processor

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	lastRunAt time.Time
	lastStats Stats
	lastErr   error
}

func NewSupervisor(proc *Processor) *Supervisor {
	return &Supervisor{proc: proc}
}

// Start launches a background run over up to maxJobs pending jobs.
func (s *Supervisor) Start(maxJobs int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.running = true
	s.cancel = cancel
	s.done = done
	s.startedAt = time.Now().UTC()

	go func() {
		stats, err := s.proc.Run(ctx, maxJobs)

		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.lastRunAt = time.Now().UTC()
		s.lastStats = stats
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.lastErr = err
		s.mu.Unlock()

		cancel()
		close(done)
	}()
	return nil
}

// Stop cancels the active run and waits for it to wind down, including the
// hangup of any call in flight.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the processor if it is running; used on service exit where
// a not-running processor is fine.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	err := s.Stop(ctx)
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	return err
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:   s.running,
		LastRunAt: s.lastRunAt,
		LastStats: s.lastStats,
	}
	if s.running {
		st.StartedAt = s.startedAt
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
