package telephony

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Simulation controls the deterministic test behavior shared by all
// adapters: synthetic call ids and optional self-delivered webhooks.
type Simulation struct {
	Enabled bool

	// DeliverWebhook posts a synthetic terminal result to the StatusURL
	// shortly after Call returns, exercising the full webhook path without a
	// vendor in the loop.
	DeliverWebhook bool
	WebhookDelay   time.Duration
}

func (s Simulation) delay() time.Duration {
	if s.WebhookDelay > 0 {
		return s.WebhookDelay
	}
	return 2 * time.Second
}

func simCallID(vendor, jobID string) string {
	return fmt.Sprintf("%s-sim-%s-%s", vendor, jobID, uuid.NewString()[:8])
}

// simulatedCallback is the payload shape shared by the JSON vendors' mock
// webhooks. It deliberately matches what the live webhooks normalize from.
type simulatedCallback struct {
	CallID     string         `json:"call_id"`
	Status     string         `json:"status"`
	Duration   int            `json:"duration"`
	Transcript string         `json:"transcript"`
	Consent    bool           `json:"consent"`
	Metadata   map[string]any `json:"metadata"`
}

const simulatedTranscript = "[Agent]: Hello, this is an automated verification call. " +
	"Could you confirm whether you have an account on file for this customer? " +
	"[Representative]: Let me check... yes, I can confirm we have that account on file."

func deliverSimulatedWebhook(log *slog.Logger, statusURL, callID, jobID string, delay time.Duration) {
	if statusURL == "" {
		return
	}
	go func() {
		time.Sleep(delay)
		payload := simulatedCallback{
			CallID:     callID,
			Status:     "completed",
			Duration:   62,
			Transcript: simulatedTranscript,
			Consent:    true,
			Metadata:   map[string]any{"job_id": jobID},
		}
		body, _ := json.Marshal(payload)
		resp, err := http.Post(statusURL, "application/json", bytes.NewReader(body))
		if err != nil {
			log.Warn("simulated webhook delivery failed", "call_id", callID, "err", err)
			return
		}
		_ = resp.Body.Close()
		log.Debug("simulated webhook delivered", "call_id", callID, "url", statusURL)
	}()
}

// deliverSimulatedTwilioWebhook posts the Twilio-shaped form callback. Twilio
// status callbacks are form-encoded, so the simulated one has to match the
// form parser, not the shared JSON shape.
func deliverSimulatedTwilioWebhook(log *slog.Logger, statusURL, callID string, delay time.Duration) {
	if statusURL == "" {
		return
	}
	go func() {
		time.Sleep(delay)
		form := url.Values{}
		form.Set("CallSid", callID)
		form.Set("CallStatus", "completed")
		form.Set("CallDuration", "62")
		form.Set("TranscriptionText", simulatedTranscript)
		form.Set("RecordingConsent", "true")
		resp, err := http.PostForm(statusURL, form)
		if err != nil {
			log.Warn("simulated webhook delivery failed", "call_id", callID, "err", err)
			return
		}
		_ = resp.Body.Close()
		log.Debug("simulated webhook delivered", "call_id", callID, "url", statusURL)
	}()
}
