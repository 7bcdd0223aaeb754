package verify

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"account-verifier/pkg/utils"

	"github.com/google/uuid"
)

// PostgresStore persists jobs and attempts in Postgres.
//
// Expected tables:
// - verification_jobs (PK job_id)
// - call_attempts (PK attempt_id, UNIQUE (provider_call_id) WHERE ended_at IS NULL)
//
// Row-level locking (SELECT ... FOR UPDATE on the job) serializes concurrent
// webhook delivery against admin bulk operations touching the same job.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `
job_id, customer_name, customer_phone, customer_email,
company_name, company_phone, account_number,
status, account_exists, attempt_count, last_attempt_at, priority,
provider_call_id, summary, transcript, agent_notes, last_error,
created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (Job, error) {
	var j Job
	var lastAttempt sql.NullTime
	err := row.Scan(
		&j.ID,
		&j.CustomerName,
		&j.CustomerPhone,
		&j.CustomerEmail,
		&j.CompanyName,
		&j.CompanyPhone,
		&j.AccountNumber,
		&j.Status,
		&j.AccountExists,
		&j.AttemptCount,
		&lastAttempt,
		&j.Priority,
		&j.ProviderCallID,
		&j.Summary,
		&j.Transcript,
		&j.AgentNotes,
		&j.LastError,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return Job{}, err
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time
		j.LastAttemptAt = &t
	}
	return j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM verification_jobs WHERE job_id = $1`
	j, err := scanJob(s.db.QueryRowContext(ctx, q, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM verification_jobs
WHERE status = $1
ORDER BY priority DESC, created_at ASC
LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func lockJob(ctx context.Context, tx *sql.Tx, jobID string) (Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM verification_jobs WHERE job_id = $1 FOR UPDATE`
	j, err := scanJob(tx.QueryRowContext(ctx, q, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

func (s *PostgresStore) MarkCalling(ctx context.Context, p MarkCallingParams) (Job, Attempt, error) {
	var outJob Job
	var outAttempt Attempt

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		j, err := lockJob(ctx, tx, p.JobID)
		if err != nil {
			return err
		}
		if j.Status != StatusPending {
			return ErrInvalidState
		}

		var open int
		const openQ = `SELECT COUNT(*) FROM call_attempts WHERE job_id = $1 AND ended_at IS NULL`
		if err := tx.QueryRowContext(ctx, openQ, p.JobID).Scan(&open); err != nil {
			return err
		}
		if open > 0 {
			return ErrInvalidState
		}

		now := p.Now.UTC()
		const updateQ = `
UPDATE verification_jobs
SET status = $2, attempt_count = attempt_count + 1, last_attempt_at = $3,
    provider_call_id = $4, updated_at = $3
WHERE job_id = $1
RETURNING ` + jobColumns
		outJob, err = scanJob(tx.QueryRowContext(ctx, updateQ, p.JobID, StatusCalling, now, p.ProviderCallID))
		if err != nil {
			return err
		}

		outAttempt = Attempt{
			ID:             uuid.NewString(),
			JobID:          p.JobID,
			ProviderCallID: p.ProviderCallID,
			Provider:       p.Provider,
			Direction:      "outbound",
			FromNumber:     p.FromNumber,
			ToNumber:       j.CompanyPhone,
			InitiatedAt:    now,
			VendorStatus:   "initiated",
			SequenceNumber: outJob.AttemptCount,
			CreatedAt:      now,
		}
		const insertQ = `
INSERT INTO call_attempts (
  attempt_id, job_id, provider_call_id, provider, direction,
  from_number, to_number, initiated_at, duration_seconds,
  vendor_status, outcome, sequence_number, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
		_, err = tx.ExecContext(ctx, insertQ,
			outAttempt.ID,
			outAttempt.JobID,
			outAttempt.ProviderCallID,
			outAttempt.Provider,
			outAttempt.Direction,
			outAttempt.FromNumber,
			outAttempt.ToNumber,
			outAttempt.InitiatedAt,
			0,
			outAttempt.VendorStatus,
			"",
			outAttempt.SequenceNumber,
			outAttempt.CreatedAt,
		)
		return err
	})
	if err != nil {
		return Job{}, Attempt{}, err
	}
	return outJob, outAttempt, nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, jobID, message string) error {
	const q = `
UPDATE verification_jobs
SET status = $2, last_error = $3, provider_call_id = '', updated_at = $4
WHERE job_id = $1`
	res, err := s.db.ExecContext(ctx, q, jobID, StatusFailed, message, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const attemptColumns = `
attempt_id, job_id, provider_call_id, provider, direction,
from_number, to_number, initiated_at, answered_at, ended_at,
duration_seconds, vendor_status, outcome, sequence_number, created_at`

func scanAttempt(row interface{ Scan(...any) error }) (Attempt, error) {
	var a Attempt
	var answered, ended sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.JobID,
		&a.ProviderCallID,
		&a.Provider,
		&a.Direction,
		&a.FromNumber,
		&a.ToNumber,
		&a.InitiatedAt,
		&answered,
		&ended,
		&a.DurationSeconds,
		&a.VendorStatus,
		&a.Outcome,
		&a.SequenceNumber,
		&a.CreatedAt,
	)
	if err != nil {
		return Attempt{}, err
	}
	if answered.Valid {
		t := answered.Time
		a.AnsweredAt = &t
	}
	if ended.Valid {
		t := ended.Time
		a.EndedAt = &t
	}
	return a, nil
}

func (s *PostgresStore) FindOpenAttempt(ctx context.Context, providerCallID string) (Attempt, bool, error) {
	const q = `SELECT ` + attemptColumns + `
FROM call_attempts
WHERE provider_call_id = $1 AND ended_at IS NULL
LIMIT 1`
	a, err := scanAttempt(s.db.QueryRowContext(ctx, q, providerCallID))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, err
	}
	return a, true, nil
}

func (s *PostgresStore) HasOpenAttempt(ctx context.Context, jobID string) (bool, error) {
	var n int
	const q = `SELECT COUNT(*) FROM call_attempts WHERE job_id = $1 AND ended_at IS NULL`
	if err := s.db.QueryRowContext(ctx, q, jobID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) CloseAttempt(ctx context.Context, p CloseAttemptParams) (Job, error) {
	var outJob Job

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const findQ = `SELECT ` + attemptColumns + `
FROM call_attempts
WHERE provider_call_id = $1 AND ended_at IS NULL
FOR UPDATE
LIMIT 1`
		a, err := scanAttempt(tx.QueryRowContext(ctx, findQ, p.ProviderCallID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		j, err := lockJob(ctx, tx, a.JobID)
		if err != nil {
			return err
		}

		ended := p.EndedAt.UTC()
		const closeQ = `
UPDATE call_attempts
SET ended_at = $2, duration_seconds = $3, vendor_status = $4, outcome = $5
WHERE attempt_id = $1`
		if _, err := tx.ExecContext(ctx, closeQ, a.ID, ended, p.DurationSeconds, p.VendorStatus, p.Outcome); err != nil {
			return err
		}

		account := j.AccountExists
		if account == AccountUnknown || account == "" {
			if st := p.Outcome.AccountState(); st != AccountUnknown {
				account = st
			}
		}

		const jobQ = `
UPDATE verification_jobs
SET status = $2, account_exists = $3, provider_call_id = '',
    summary = $4, transcript = $5, agent_notes = $6, last_error = $7,
    updated_at = $8
WHERE job_id = $1
RETURNING ` + jobColumns
		outJob, err = scanJob(tx.QueryRowContext(ctx, jobQ,
			j.ID, p.NextStatus, account, p.Summary, p.Transcript, p.AgentNotes, p.LastError, ended))
		return err
	})
	if err != nil {
		return Job{}, err
	}
	return outJob, nil
}

func (s *PostgresStore) AttemptsForJob(ctx context.Context, jobID string) ([]Attempt, error) {
	const q = `SELECT ` + attemptColumns + `
FROM call_attempts
WHERE job_id = $1
ORDER BY initiated_at DESC`
	rows, err := s.db.QueryContext(ctx, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
