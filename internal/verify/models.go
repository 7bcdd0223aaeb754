package verify

import "time"

// Job is one verification campaign for a (customer, company) pair.
//
// Invariants:
// - AttemptCount only increases, by exactly one per initiated call.
// - Status transitions follow the state machine (see CanTransition).
// - AccountExists is set exactly once to a definitive value and never
//   reverts to unknown.
//
// Jobs are created externally (data entry / CSV import) in StatusPending and
// mutated exclusively by the orchestrator; the engine never deletes them.

type Job struct {
	ID string `json:"job_id" db:"job_id"`

	CustomerName  string `json:"customer_name" db:"customer_name"`
	CustomerPhone string `json:"customer_phone" db:"customer_phone"`
	CustomerEmail string `json:"customer_email,omitempty" db:"customer_email"`
	CompanyName   string `json:"company_name" db:"company_name"`
	CompanyPhone  string `json:"company_phone" db:"company_phone"`
	AccountNumber string `json:"account_number,omitempty" db:"account_number"`

	Status        Status       `json:"status" db:"status"`
	AccountExists AccountState `json:"account_exists" db:"account_exists"`

	AttemptCount  int        `json:"attempt_count" db:"attempt_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`

	// Priority orders the pending queue; higher is called sooner.
	Priority int `json:"priority" db:"priority"`

	// ProviderCallID references the vendor call currently in flight, if any.
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	Summary    string `json:"summary,omitempty" db:"summary"`
	Transcript string `json:"transcript,omitempty" db:"transcript"`
	AgentNotes string `json:"agent_notes,omitempty" db:"agent_notes"`
	LastError  string `json:"last_error,omitempty" db:"last_error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending         Status = "pending"
	StatusCalling         Status = "calling"
	StatusAccountFound    Status = "account_found"
	StatusAccountNotFound Status = "account_not_found"
	StatusNeedsHuman      Status = "needs_human"
	StatusVoicemail       Status = "voicemail"
	StatusFailed          Status = "failed"
)

// Terminal reports whether no further calls may be scheduled for a job in
// this status. NeedsHuman/Voicemail/Failed are resting states, not terminal:
// the retry scheduler may loop them back to pending.
func (s Status) Terminal() bool {
	return s == StatusAccountFound || s == StatusAccountNotFound
}

// CanTransition encodes the job state machine.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusCalling || to == StatusFailed
	case StatusCalling:
		switch to {
		case StatusAccountFound, StatusAccountNotFound, StatusNeedsHuman, StatusVoicemail, StatusFailed, StatusPending:
			return true
		}
		return false
	case StatusNeedsHuman, StatusVoicemail, StatusFailed:
		return to == StatusPending
	case StatusAccountFound, StatusAccountNotFound:
		return false
	}
	return false
}

// AccountState is the tri-state answer to "does the account exist".
type AccountState string

const (
	AccountUnknown   AccountState = "unknown"
	AccountExists    AccountState = "exists"
	AccountNotExists AccountState = "not_exists"
)

// Outcome is the canonical call result vocabulary used internally regardless
// of vendor. Vendor webhook adapters normalize into this set and nothing past
// that boundary speaks vendor vocabulary.
type Outcome string

const (
	OutcomeAccountFound    Outcome = "account_found"
	OutcomeAccountNotFound Outcome = "account_not_found"
	OutcomeNeedsHuman      Outcome = "needs_human"
	OutcomeVoicemail       Outcome = "voicemail"
	OutcomeFailed          Outcome = "failed"
)

// AccountState maps an outcome to the tri-state answer. Only the two
// definitive outcomes produce a non-unknown value.
func (o Outcome) AccountState() AccountState {
	switch o {
	case OutcomeAccountFound:
		return AccountExists
	case OutcomeAccountNotFound:
		return AccountNotExists
	default:
		return AccountUnknown
	}
}

// Status returns the resting job status for an outcome once retries are
// exhausted.
func (o Outcome) Status() Status {
	switch o {
	case OutcomeAccountFound:
		return StatusAccountFound
	case OutcomeAccountNotFound:
		return StatusAccountNotFound
	case OutcomeNeedsHuman:
		return StatusNeedsHuman
	case OutcomeVoicemail:
		return StatusVoicemail
	default:
		return StatusFailed
	}
}

// Attempt is one physical phone call tied to a job.
//
// Invariants:
// - At most one attempt per job is open (EndedAt == nil) at a time.
// - A job must have zero open attempts before a new one is created.

type Attempt struct {
	ID    string `json:"attempt_id" db:"attempt_id"`
	JobID string `json:"job_id" db:"job_id"`

	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`
	Provider       string `json:"provider" db:"provider"`
	Direction      string `json:"direction" db:"direction"`

	FromNumber string `json:"from_number" db:"from_number"`
	ToNumber   string `json:"to_number" db:"to_number"`

	InitiatedAt time.Time  `json:"initiated_at" db:"initiated_at"`
	AnsweredAt  *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// VendorStatus is the raw status string reported by the vendor, kept for
	// operator visibility only.
	VendorStatus string `json:"vendor_status,omitempty" db:"vendor_status"`

	// Outcome stays empty until the attempt is resolved.
	Outcome Outcome `json:"outcome,omitempty" db:"outcome"`

	// SequenceNumber is the job's attempt count at initiation time.
	SequenceNumber int `json:"sequence_number" db:"sequence_number"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Open reports whether the attempt has not yet been closed.
func (a Attempt) Open() bool { return a.EndedAt == nil }
