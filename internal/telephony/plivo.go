package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const plivoAPIBase = "https://api.plivo.com/v1/Account"

// PlivoProvider places calls through the Plivo Voice API.
type PlivoProvider struct {
	authID     string
	authToken  string
	fromNumber string

	sim    Simulation
	client *http.Client
	log    *slog.Logger
}

type PlivoOptions struct {
	AuthID     string
	AuthToken  string
	FromNumber string
	Simulation Simulation
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewPlivoProvider(opts PlivoOptions) *PlivoProvider {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &PlivoProvider{
		authID:     opts.AuthID,
		authToken:  opts.AuthToken,
		fromNumber: opts.FromNumber,
		sim:        opts.Simulation,
		client:     client,
		log:        log,
	}
}

func (p *PlivoProvider) Name() string { return "plivo" }

func (p *PlivoProvider) CallerID() string { return p.fromNumber }

func (p *PlivoProvider) Call(ctx context.Context, req CallRequest) (string, error) {
	if p.sim.Enabled {
		id := simCallID("plivo", req.JobID)
		p.log.Info("simulated plivo call", "call_id", id, "to", req.To)
		if p.sim.DeliverWebhook {
			deliverSimulatedWebhook(p.log, req.StatusURL, id, req.JobID, p.sim.delay())
		}
		return id, nil
	}

	if p.authID == "" || p.authToken == "" {
		return "", errors.New("telephony: plivo credentials not configured")
	}

	payload := map[string]any{
		"to":              req.To,
		"from":            p.fromNumber,
		"answer_url":      req.AnswerURL,
		"callback_url":    req.StatusURL,
		"callback_method": "POST",
	}

	var out struct {
		RequestUUID string `json:"request_uuid"`
		Message     string `json:"message"`
	}
	endpoint := fmt.Sprintf("%s/%s/Call/", plivoAPIBase, p.authID)
	if err := p.do(ctx, http.MethodPost, endpoint, payload, &out); err != nil {
		return "", fmt.Errorf("telephony: plivo call failed: %w", err)
	}
	if out.RequestUUID == "" {
		return "", fmt.Errorf("telephony: plivo returned no call uuid (%s)", out.Message)
	}
	p.log.Info("plivo call placed", "call_id", out.RequestUUID, "to", req.To)
	return out.RequestUUID, nil
}

func (p *PlivoProvider) Hangup(ctx context.Context, providerCallID string) error {
	if p.sim.Enabled {
		p.log.Info("simulated plivo hangup", "call_id", providerCallID)
		return nil
	}
	endpoint := fmt.Sprintf("%s/%s/Call/%s/", plivoAPIBase, p.authID, providerCallID)
	if err := p.do(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("telephony: plivo hangup failed: %w", err)
	}
	return nil
}

func (p *PlivoProvider) Balance(ctx context.Context) (Balance, error) {
	if p.sim.Enabled {
		return Balance{Amount: 100, Currency: "USD", Note: "simulated"}, nil
	}

	var out struct {
		CashCredits string `json:"cash_credits"`
	}
	endpoint := fmt.Sprintf("%s/%s/", plivoAPIBase, p.authID)
	if err := p.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return Balance{}, fmt.Errorf("telephony: plivo balance query failed: %w", err)
	}
	amount, err := strconv.ParseFloat(out.CashCredits, 64)
	if err != nil {
		return Balance{Currency: "USD", Note: out.CashCredits}, nil
	}
	return Balance{Amount: amount, Currency: "USD"}, nil
}

func (p *PlivoProvider) do(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.authID, p.authToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
