package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioProvider places calls through the Twilio Voice REST API.
type TwilioProvider struct {
	accountSID string
	authToken  string
	fromNumber string

	sim    Simulation
	client *http.Client
	log    *slog.Logger
}

type TwilioOptions struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	Simulation Simulation
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewTwilioProvider(opts TwilioOptions) *TwilioProvider {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &TwilioProvider{
		accountSID: opts.AccountSID,
		authToken:  opts.AuthToken,
		fromNumber: opts.FromNumber,
		sim:        opts.Simulation,
		client:     client,
		log:        log,
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) CallerID() string { return p.fromNumber }

func (p *TwilioProvider) Call(ctx context.Context, req CallRequest) (string, error) {
	if p.sim.Enabled {
		id := simCallID("twilio", req.JobID)
		p.log.Info("simulated twilio call", "call_id", id, "to", req.To)
		if p.sim.DeliverWebhook {
			deliverSimulatedTwilioWebhook(p.log, req.StatusURL, id, p.sim.delay())
		}
		return id, nil
	}

	if p.accountSID == "" || p.authToken == "" {
		return "", errors.New("telephony: twilio credentials not configured")
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", p.fromNumber)
	form.Set("Url", req.AnswerURL)
	form.Set("StatusCallback", req.StatusURL)
	for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
		form.Add("StatusCallbackEvent", ev)
	}
	form.Set("StatusCallbackMethod", "POST")
	form.Set("Timeout", "30")
	form.Set("MachineDetection", "Enable")

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", twilioAPIBase, p.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(p.accountSID, p.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		Sid     string `json:"sid"`
		Message string `json:"message"`
	}
	if err := p.do(httpReq, &out); err != nil {
		return "", fmt.Errorf("telephony: twilio call failed: %w", err)
	}
	if out.Sid == "" {
		return "", fmt.Errorf("telephony: twilio returned no call sid (%s)", out.Message)
	}
	p.log.Info("twilio call placed", "call_id", out.Sid, "to", req.To)
	return out.Sid, nil
}

func (p *TwilioProvider) Hangup(ctx context.Context, providerCallID string) error {
	if p.sim.Enabled {
		p.log.Info("simulated twilio hangup", "call_id", providerCallID)
		return nil
	}

	form := url.Values{}
	form.Set("Status", "completed")

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", twilioAPIBase, p.accountSID, providerCallID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.SetBasicAuth(p.accountSID, p.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := p.do(httpReq, nil); err != nil {
		return fmt.Errorf("telephony: twilio hangup failed: %w", err)
	}
	return nil
}

func (p *TwilioProvider) Balance(ctx context.Context) (Balance, error) {
	if p.sim.Enabled {
		return Balance{Amount: 100, Currency: "USD", Note: "simulated"}, nil
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Balance.json", twilioAPIBase, p.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Balance{}, err
	}
	httpReq.SetBasicAuth(p.accountSID, p.authToken)

	var out struct {
		Balance  string `json:"balance"`
		Currency string `json:"currency"`
	}
	if err := p.do(httpReq, &out); err != nil {
		return Balance{}, fmt.Errorf("telephony: twilio balance query failed: %w", err)
	}
	amount, err := strconv.ParseFloat(out.Balance, 64)
	if err != nil {
		// Trial accounts report non-numeric balances.
		return Balance{Currency: out.Currency, Note: out.Balance}, nil
	}
	return Balance{Amount: amount, Currency: out.Currency}, nil
}

func (p *TwilioProvider) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
