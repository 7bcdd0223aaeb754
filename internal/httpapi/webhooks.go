package httpapi

import (
	"net/http"

	"account-verifier/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Vendor callbacks always get a 200. A non-2xx makes vendors re-deliver on a
// schedule we do not control; correlation misses and handling errors are our
// problem, not theirs.

// TwilioStatus ingests Twilio status callbacks (form-encoded).
func (h Handlers) TwilioStatus(c *gin.Context) {
	res, err := telephony.ParseTwilioStatusCallback(c.Request)
	if err != nil {
		h.Log.Warn("unparseable twilio callback", "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	h.applyResult(c, res)
}

// TwilioAnswer returns the TwiML call flow when a Twilio call connects.
func (h Handlers) TwilioAnswer(c *gin.Context) {
	const twiml = `<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Say voice="alice">Hello, this is an automated account verification call. A representative will state the customer details. Please confirm whether an account exists.</Say>
  <Record transcribe="true" maxLength="120" playBeep="false"/>
</Response>`
	c.Data(http.StatusOK, "application/xml", []byte(twiml))
}

// TelnyxStatus ingests Telnyx call webhooks (JSON).
func (h Handlers) TelnyxStatus(c *gin.Context) {
	h.jsonStatus(c, "telnyx")
}

// PlivoStatus ingests Plivo call webhooks (JSON).
func (h Handlers) PlivoStatus(c *gin.Context) {
	h.jsonStatus(c, "plivo")
}

func (h Handlers) jsonStatus(c *gin.Context, vendor string) {
	res, err := telephony.ParseJSONStatusCallback(c.Request)
	if err != nil {
		h.Log.Warn("unparseable callback", "vendor", vendor, "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	h.applyResult(c, res)
}

func (h Handlers) applyResult(c *gin.Context, res telephony.CallResult) {
	if err := h.Orch.HandleResult(c.Request.Context(), res); err != nil {
		h.Log.Error("applying call result failed", "call_id", res.ProviderCallID, "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
