package telephony

import (
	"context"
	"errors"

	"account-verifier/internal/verify"
)

// Provider is the uniform capability set every telephony vendor adapter
// implements.
//
// Rules:
// - No vendor SDK or wire-format code outside telephony adapters.
// - Adapters without live integration still implement a deterministic
//   simulated mode so the rest of the engine stays vendor-agnostic in tests.
type Provider interface {
	Name() string

	// Call places an outbound call and returns the vendor call identifier.
	Call(ctx context.Context, req CallRequest) (string, error)

	// Hangup requests termination of an active call. A hangup failure is a
	// cost hazard, not a correctness one; callers log and move on.
	Hangup(ctx context.Context, providerCallID string) error

	// Balance queries the vendor account balance. Errors are expected on
	// trial accounts and treated as "balance unknown" by callers.
	Balance(ctx context.Context) (Balance, error)

	// CallerID returns the configured outbound number, empty if none.
	CallerID() string
}

// CallRequest is the provider-agnostic outbound call order.
type CallRequest struct {
	To    string
	JobID string

	// AnswerURL receives call-flow instructions when the call connects.
	AnswerURL string
	// StatusURL receives lifecycle and result callbacks.
	StatusURL string
}

type Balance struct {
	Amount   float64
	Currency string

	// Note carries vendor remarks ("simulated", "trial account").
	Note string
}

// CallResult is the canonical webhook shape consumed by the orchestrator.
// One small normalizer per vendor converts into this; vendor vocabulary does
// not leak past that boundary.
type CallResult struct {
	ProviderCallID string
	VendorStatus   string

	// Final marks the event as terminal for the attempt. Intermediate
	// lifecycle updates (ringing, answered) are acknowledged only.
	Final bool

	// Outcome is the canonical result when the vendor (or its hosted agent)
	// reported one. Empty means the transcript must be classified.
	Outcome verify.Outcome

	Transcript      string
	DurationSeconds int

	// Consent records whether recording consent was given on the call.
	Consent bool
}

var ErrUnknownProvider = errors.New("telephony: unknown provider")
