package telephony

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ParseTwilioStatusCallback normalizes a Twilio status callback. Twilio posts
// form-encoded bodies; everything downstream speaks CallResult.
func ParseTwilioStatusCallback(r *http.Request) (CallResult, error) {
	if err := r.ParseForm(); err != nil {
		return CallResult{}, fmt.Errorf("telephony: bad twilio callback: %w", err)
	}

	callSID := strings.TrimSpace(r.PostFormValue("CallSid"))
	if callSID == "" {
		return CallResult{}, fmt.Errorf("telephony: twilio callback missing CallSid")
	}

	status := strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus")))
	duration, _ := strconv.Atoi(r.PostFormValue("CallDuration"))

	res := CallResult{
		ProviderCallID:  callSID,
		VendorStatus:    status,
		Transcript:      r.PostFormValue("TranscriptionText"),
		DurationSeconds: duration,
		Consent:         parseConsent(r.PostFormValue("RecordingConsent")),
	}
	res.Final, res.Outcome = normalizeStatus(status, r.PostFormValue("VerificationOutcome"))
	return res, nil
}

func parseConsent(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "granted":
		return true
	}
	return false
}
