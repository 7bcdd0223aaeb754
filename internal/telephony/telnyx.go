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

const telnyxAPIBase = "https://api.telnyx.com/v2"

// TelnyxProvider places calls through the Telnyx Call Control API.
type TelnyxProvider struct {
	apiKey     string
	fromNumber string

	sim    Simulation
	client *http.Client
	log    *slog.Logger
}

type TelnyxOptions struct {
	APIKey     string
	FromNumber string
	Simulation Simulation
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewTelnyxProvider(opts TelnyxOptions) *TelnyxProvider {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &TelnyxProvider{
		apiKey:     opts.APIKey,
		fromNumber: opts.FromNumber,
		sim:        opts.Simulation,
		client:     client,
		log:        log,
	}
}

func (p *TelnyxProvider) Name() string { return "telnyx" }

func (p *TelnyxProvider) CallerID() string { return p.fromNumber }

func (p *TelnyxProvider) Call(ctx context.Context, req CallRequest) (string, error) {
	if p.sim.Enabled {
		id := simCallID("telnyx", req.JobID)
		p.log.Info("simulated telnyx call", "call_id", id, "to", req.To)
		if p.sim.DeliverWebhook {
			deliverSimulatedWebhook(p.log, req.StatusURL, id, req.JobID, p.sim.delay())
		}
		return id, nil
	}

	if p.apiKey == "" {
		return "", errors.New("telephony: telnyx api key not configured")
	}

	payload := map[string]any{
		"to":          req.To,
		"from":        p.fromNumber,
		"webhook_url": req.StatusURL,
		"custom_headers": []map[string]string{
			{"name": "X-Job-Id", "value": req.JobID},
		},
	}

	var out struct {
		Data struct {
			CallControlID string `json:"call_control_id"`
		} `json:"data"`
	}
	if err := p.do(ctx, http.MethodPost, telnyxAPIBase+"/calls", payload, &out); err != nil {
		return "", fmt.Errorf("telephony: telnyx call failed: %w", err)
	}
	if out.Data.CallControlID == "" {
		return "", errors.New("telephony: telnyx returned no call id")
	}
	p.log.Info("telnyx call placed", "call_id", out.Data.CallControlID, "to", req.To)
	return out.Data.CallControlID, nil
}

func (p *TelnyxProvider) Hangup(ctx context.Context, providerCallID string) error {
	if p.sim.Enabled {
		p.log.Info("simulated telnyx hangup", "call_id", providerCallID)
		return nil
	}
	endpoint := fmt.Sprintf("%s/calls/%s/actions/hangup", telnyxAPIBase, providerCallID)
	if err := p.do(ctx, http.MethodPost, endpoint, map[string]any{}, nil); err != nil {
		return fmt.Errorf("telephony: telnyx hangup failed: %w", err)
	}
	return nil
}

func (p *TelnyxProvider) Balance(ctx context.Context) (Balance, error) {
	if p.sim.Enabled {
		return Balance{Amount: 100, Currency: "USD", Note: "simulated"}, nil
	}

	var out struct {
		Data struct {
			Balance  string `json:"balance"`
			Currency string `json:"currency"`
		} `json:"data"`
	}
	if err := p.do(ctx, http.MethodGet, telnyxAPIBase+"/balance", nil, &out); err != nil {
		return Balance{}, fmt.Errorf("telephony: telnyx balance query failed: %w", err)
	}
	amount, err := strconv.ParseFloat(out.Data.Balance, 64)
	if err != nil {
		return Balance{Currency: out.Data.Currency, Note: out.Data.Balance}, nil
	}
	return Balance{Amount: amount, Currency: out.Data.Currency}, nil
}

func (p *TelnyxProvider) do(ctx context.Context, method, endpoint string, payload any, out any) error {
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
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
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
