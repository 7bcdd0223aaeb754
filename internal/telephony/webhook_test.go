package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-verifier/internal/verify"
)

func TestParseTwilioStatusCallback(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("CallStatus", "completed")
	form.Set("CallDuration", "42")
	form.Set("TranscriptionText", "we have that account on file")
	form.Set("RecordingConsent", "true")

	req := httptest.NewRequest("POST", "/webhooks/twilio/status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := ParseTwilioStatusCallback(req)
	require.NoError(t, err)
	assert.Equal(t, "CA123", res.ProviderCallID)
	assert.True(t, res.Final)
	assert.Equal(t, 42, res.DurationSeconds)
	assert.True(t, res.Consent)
	assert.Equal(t, verify.Outcome(""), res.Outcome, "completed with no hint defers to the classifier")
}

func TestParseTwilioStatusCallbackRequiresCallSid(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhooks/twilio/status", strings.NewReader("CallStatus=completed"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err := ParseTwilioStatusCallback(req)
	assert.Error(t, err)
}

func TestParseJSONStatusCallback(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		callID  string
		final   bool
		outcome verify.Outcome
	}{
		{
			name:    "completed with outcome hint",
			body:    `{"call_id":"c1","status":"completed","outcome":"account_found","duration":30,"consent":true}`,
			callID:  "c1",
			final:   true,
			outcome: verify.OutcomeAccountFound,
		},
		{
			name:    "telnyx call control id",
			body:    `{"call_control_id":"cc1","status":"no_answer"}`,
			callID:  "cc1",
			final:   true,
			outcome: verify.OutcomeFailed,
		},
		{
			name:    "plivo request uuid",
			body:    `{"request_uuid":"ru1","status":"busy"}`,
			callID:  "ru1",
			final:   true,
			outcome: verify.OutcomeFailed,
		},
		{
			name:    "voicemail",
			body:    `{"call_id":"c2","status":"voicemail"}`,
			callID:  "c2",
			final:   true,
			outcome: verify.OutcomeVoicemail,
		},
		{
			name:   "lifecycle event is not final",
			body:   `{"call_id":"c3","status":"ringing"}`,
			callID: "c3",
			final:  false,
		},
		{
			name:    "completed not_found hint",
			body:    `{"call_id":"c4","status":"completed","outcome":"not_found"}`,
			callID:  "c4",
			final:   true,
			outcome: verify.OutcomeAccountNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/webhooks/telnyx", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")

			res, err := ParseJSONStatusCallback(req)
			require.NoError(t, err)
			assert.Equal(t, tc.callID, res.ProviderCallID)
			assert.Equal(t, tc.final, res.Final)
			assert.Equal(t, tc.outcome, res.Outcome)
		})
	}
}

// The twilio adapter's simulated webhook must round-trip through the form
// parser its own status endpoint uses.
func TestSimulatedTwilioWebhookMatchesFormParser(t *testing.T) {
	type parsed struct {
		res CallResult
		err error
	}
	results := make(chan parsed, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := ParseTwilioStatusCallback(r)
		results <- parsed{res: res, err: err}
	}))
	defer srv.Close()

	p := NewTwilioProvider(TwilioOptions{
		FromNumber: "+15550199",
		Simulation: Simulation{Enabled: true, DeliverWebhook: true, WebhookDelay: time.Millisecond},
	})
	id, err := p.Call(context.Background(), CallRequest{
		To:        "+15550100",
		JobID:     "job-1",
		StatusURL: srv.URL + "/webhooks/twilio/status",
	})
	require.NoError(t, err)

	select {
	case got := <-results:
		require.NoError(t, got.err)
		assert.Equal(t, id, got.res.ProviderCallID)
		assert.True(t, got.res.Final)
		assert.True(t, got.res.Consent)
		assert.NotEmpty(t, got.res.Transcript)
	case <-time.After(2 * time.Second):
		t.Fatal("simulated webhook never arrived")
	}
}

func TestParseJSONStatusCallbackRejectsMissingCallID(t *testing.T) {
	req := httptest.NewRequest("POST", "/webhooks/telnyx", strings.NewReader(`{"status":"completed"}`))
	_, err := ParseJSONStatusCallback(req)
	assert.Error(t, err)
}
