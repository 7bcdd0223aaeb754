package telephony

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"account-verifier/internal/verify"
)

// jsonCallback is the superset of fields the JSON vendors (telnyx, plivo) and
// the simulated webhook post. Unknown fields are ignored.
type jsonCallback struct {
	CallID        string `json:"call_id"`
	CallControlID string `json:"call_control_id"`
	RequestUUID   string `json:"request_uuid"`

	Status   string `json:"status"`
	Outcome  string `json:"outcome"`
	Duration int    `json:"duration"`

	Transcript string `json:"transcript"`
	Consent    bool   `json:"consent"`

	Metadata map[string]any `json:"metadata"`
}

// ParseJSONStatusCallback normalizes a JSON vendor callback into a
// CallResult. The call id may arrive under a vendor-specific key.
func ParseJSONStatusCallback(r *http.Request) (CallResult, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return CallResult{}, fmt.Errorf("telephony: reading callback body: %w", err)
	}

	var cb jsonCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return CallResult{}, fmt.Errorf("telephony: bad json callback: %w", err)
	}

	callID := cb.CallID
	if callID == "" {
		callID = cb.CallControlID
	}
	if callID == "" {
		callID = cb.RequestUUID
	}
	if callID == "" {
		return CallResult{}, fmt.Errorf("telephony: callback missing call id")
	}

	status := strings.ToLower(strings.TrimSpace(cb.Status))
	res := CallResult{
		ProviderCallID:  callID,
		VendorStatus:    status,
		Transcript:      cb.Transcript,
		DurationSeconds: cb.Duration,
		Consent:         cb.Consent,
	}
	res.Final, res.Outcome = normalizeStatus(status, cb.Outcome)
	return res, nil
}

// normalizeStatus maps a vendor status (plus an optional outcome hint) onto
// the canonical vocabulary. Lifecycle statuses (queued, ringing, answered,
// in-progress) are non-final and carry no outcome.
func normalizeStatus(status, outcomeHint string) (final bool, outcome verify.Outcome) {
	switch status {
	case "voicemail", "machine", "answering_machine":
		return true, verify.OutcomeVoicemail
	case "failed", "busy", "no_answer", "no-answer", "canceled", "cancelled":
		return true, verify.OutcomeFailed
	case "completed", "hangup", "ended":
		switch strings.ToLower(strings.TrimSpace(outcomeHint)) {
		case "account_found", "verified", "success":
			return true, verify.OutcomeAccountFound
		case "account_not_found", "not_found":
			return true, verify.OutcomeAccountNotFound
		case "needs_human", "transfer":
			return true, verify.OutcomeNeedsHuman
		case "voicemail":
			return true, verify.OutcomeVoicemail
		}
		// Completed with no hint: the transcript decides.
		return true, ""
	}
	return false, ""
}
