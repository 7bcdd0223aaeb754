// Package orchestrator drives a verification job through one call attempt:
// preflight checks, placing the call, and applying the webhook result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"account-verifier/internal/classify"
	"account-verifier/internal/monitor"
	"account-verifier/internal/settings"
	"account-verifier/internal/telephony"
	"account-verifier/internal/verify"
	"account-verifier/pkg/utils"
)

var (
	// ErrJobTerminal means the job already has a definitive answer; it can
	// never be called again.
	ErrJobTerminal = errors.New("orchestrator: job is terminal")

	ErrRetryExhausted = errors.New("orchestrator: retry budget exhausted")

	// ErrInsufficientFunds blocks live calls when the provider balance is
	// known to be zero or negative.
	ErrInsufficientFunds = errors.New("orchestrator: provider balance depleted")

	// ErrWebhookBaseRequired means no usable public callback base could be
	// resolved for a live call.
	ErrWebhookBaseRequired = errors.New("orchestrator: webhook base url required for live calls")

	ErrConcurrencyLimit = errors.New("orchestrator: concurrent call limit reached")
)

// RetryNotDueError delays a job that still has retry budget but whose backoff
// window has not elapsed.
type RetryNotDueError struct {
	Wait time.Duration
}

func (e *RetryNotDueError) Error() string {
	return fmt.Sprintf("orchestrator: retry not due for %s", e.Wait.Round(time.Second))
}

// Providers resolves telephony adapters. Satisfied by telephony.Selector.
type Providers interface {
	Active(ctx context.Context) (telephony.Provider, error)
	ByName(ctx context.Context, name string) (telephony.Provider, error)
}

const callSlotKey = "verifier:calls:inflight"

// Orchestrator owns the job state machine. All job mutations flow through
// Initiate, HandleResult and HandleTimeout; nothing else writes job status.
type Orchestrator struct {
	store      verify.Store
	providers  Providers
	runtime    *settings.Runtime
	classifier classify.Classifier
	monitor    *monitor.Monitor

	// rdb enforces the concurrent-call cap across processes. Nil disables
	// the cap (single-process test setups).
	rdb *redis.Client

	locks keyedLocks
	log   *slog.Logger
}

func New(store verify.Store, providers Providers, runtime *settings.Runtime, classifier classify.Classifier, mon *monitor.Monitor, rdb *redis.Client, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:      store,
		providers:  providers,
		runtime:    runtime,
		classifier: classifier,
		monitor:    mon,
		rdb:        rdb,
		locks:      newKeyedLocks(),
		log:        log,
	}
}

// Initiate places a call for a job. webhookBase, when non-empty, overrides
// the configured callback base for this call only.
//
// On success the job is in calling state with an open attempt and the
// provider call id durably recorded. Every initiation consumes one attempt
// from the retry budget, even if no webhook ever arrives.
func (o *Orchestrator) Initiate(ctx context.Context, jobID, webhookBase string) (verify.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return verify.Job{}, err
	}
	if job.Status.Terminal() {
		return job, ErrJobTerminal
	}
	if job.Status != verify.StatusPending {
		return job, fmt.Errorf("%w: job %s is %s", verify.ErrInvalidState, jobID, job.Status)
	}

	policy := o.runtime.RetryPolicy(ctx)
	decision := policy.Eligible(job.AttemptCount, job.LastAttemptAt, time.Now().UTC())
	switch {
	case decision.Exhausted:
		return job, ErrRetryExhausted
	case !decision.Eligible:
		return job, &RetryNotDueError{Wait: decision.Wait}
	}

	provider, err := o.providers.Active(ctx)
	if err != nil {
		return job, err
	}

	simulated := o.runtime.Simulated(ctx)
	lowBalance, err := o.checkBalance(ctx, provider, simulated)
	if err != nil {
		return job, err
	}

	statusURL, answerURL, err := o.callbackURLs(ctx, provider.Name(), webhookBase, simulated)
	if err != nil {
		return job, err
	}

	release, err := o.acquireSlot(ctx)
	if err != nil {
		return job, err
	}

	callID, err := provider.Call(ctx, telephony.CallRequest{
		To:        job.CompanyPhone,
		JobID:     job.ID,
		AnswerURL: answerURL,
		StatusURL: statusURL,
	})
	if err != nil {
		release()
		if ferr := o.store.MarkFailed(ctx, job.ID, err.Error()); ferr != nil {
			o.log.Error("recording placement failure", "job_id", job.ID, "err", ferr)
		}
		return job, fmt.Errorf("placing call for job %s: %w", job.ID, err)
	}

	o.monitor.StartCall(callID, job.ID, provider.Name(), job.CompanyPhone)
	o.monitor.AddEvent(callID, "call_initiated", "Call placed via "+provider.Name(), map[string]any{
		"simulated":  simulated,
		"status_url": statusURL,
		"attempt":    job.AttemptCount + 1,
	})
	if lowBalance {
		o.monitor.AddEvent(callID, "low_balance", "Provider balance is below the configured threshold")
	}

	updated, attempt, err := o.store.MarkCalling(ctx, verify.MarkCallingParams{
		JobID:          job.ID,
		ProviderCallID: callID,
		Provider:       provider.Name(),
		FromNumber:     provider.CallerID(),
		Now:            time.Now().UTC(),
	})
	if err != nil {
		// The vendor call exists but we could not record it. Hang up to
		// avoid an untracked billable call.
		if herr := provider.Hangup(ctx, callID); herr != nil {
			o.log.Error("hangup after failed state transition", "call_id", callID, "err", herr)
		}
		release()
		o.monitor.EndCall(callID, "failed")
		return job, fmt.Errorf("recording call for job %s: %w", job.ID, err)
	}

	o.monitor.AddEvent(callID, "database_updated", "Attempt recorded", map[string]any{
		"attempt":    attempt.SequenceNumber,
		"job_status": string(updated.Status),
	})
	o.log.Info("call initiated",
		"job_id", job.ID,
		"call_id", callID,
		"provider", provider.Name(),
		"attempt", attempt.SequenceNumber,
		"simulated", simulated,
	)
	return updated, nil
}

// HandleResult applies a normalized vendor callback. It is idempotent:
// results for unknown or already-closed calls are dropped, and concurrent
// duplicates for the same call id are serialized.
func (o *Orchestrator) HandleResult(ctx context.Context, res telephony.CallResult) error {
	unlock := o.locks.lock(res.ProviderCallID)
	defer unlock()

	attempt, ok, err := o.store.FindOpenAttempt(ctx, res.ProviderCallID)
	if err != nil {
		return err
	}
	if !ok {
		o.log.Debug("dropping result for unknown or closed call", "call_id", res.ProviderCallID, "status", res.VendorStatus)
		return nil
	}

	if !res.Final {
		o.monitor.SetStatus(res.ProviderCallID, res.VendorStatus)
		return nil
	}

	job, err := o.store.GetJob(ctx, attempt.JobID)
	if err != nil {
		return err
	}

	outcome := res.Outcome
	summary := ""
	notes := ""
	if outcome == "" {
		verdict, cerr := o.classifier.Classify(ctx, classify.CallContext{
			CustomerName:  job.CustomerName,
			CompanyName:   job.CompanyName,
			AccountNumber: job.AccountNumber,
		}, res.Transcript)
		if cerr != nil {
			o.log.Warn("transcript classification failed", "call_id", res.ProviderCallID, "err", cerr)
			verdict = classify.Result{
				Outcome: verify.OutcomeFailed,
				Summary: "Automatic classification failed.",
				Notes:   "classifier error: " + cerr.Error(),
			}
		}
		outcome = verdict.Outcome
		summary = verdict.Summary
		notes = verdict.Notes
	} else {
		summary = vendorSummary(outcome)
	}

	// A definitive answer ends the call right away; every extra second on
	// the line is billed for nothing.
	if outcome == verify.OutcomeAccountFound {
		o.hangupAttempt(ctx, attempt)
	}

	nextStatus := o.nextStatus(ctx, job, outcome)

	transcript := ""
	if res.Transcript != "" && res.Consent && o.runtime.TranscriptionEnabled(ctx) {
		transcript = res.Transcript
	}

	lastError := ""
	if outcome == verify.OutcomeFailed {
		lastError = "call " + res.VendorStatus
	}

	updated, err := o.store.CloseAttempt(ctx, verify.CloseAttemptParams{
		ProviderCallID:  res.ProviderCallID,
		EndedAt:         time.Now().UTC(),
		DurationSeconds: res.DurationSeconds,
		VendorStatus:    res.VendorStatus,
		Outcome:         outcome,
		NextStatus:      nextStatus,
		Summary:         summary,
		Transcript:      transcript,
		AgentNotes:      notes,
		LastError:       lastError,
	})
	if err != nil {
		return fmt.Errorf("closing attempt for call %s: %w", res.ProviderCallID, err)
	}

	o.releaseSlot(ctx)
	o.monitor.EndCall(res.ProviderCallID, string(outcome))
	o.log.Info("call result applied",
		"job_id", updated.ID,
		"call_id", res.ProviderCallID,
		"outcome", outcome,
		"next_status", nextStatus,
		"attempt_count", updated.AttemptCount,
	)
	return nil
}

// HandleTimeout closes a call whose webhook never arrived. The attempt is
// recorded as failed and the retry budget it consumed stays consumed.
func (o *Orchestrator) HandleTimeout(ctx context.Context, providerCallID string) error {
	unlock := o.locks.lock(providerCallID)
	defer unlock()

	attempt, ok, err := o.store.FindOpenAttempt(ctx, providerCallID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	o.log.Warn("call timed out waiting for result", "job_id", attempt.JobID, "call_id", providerCallID)
	o.hangupAttempt(ctx, attempt)

	job, err := o.store.GetJob(ctx, attempt.JobID)
	if err != nil {
		return err
	}

	_, err = o.store.CloseAttempt(ctx, verify.CloseAttemptParams{
		ProviderCallID:  providerCallID,
		EndedAt:         time.Now().UTC(),
		DurationSeconds: 0,
		VendorStatus:    "timeout",
		Outcome:         verify.OutcomeFailed,
		NextStatus:      o.nextStatus(ctx, job, verify.OutcomeFailed),
		Summary:         "Call timed out before a result arrived.",
		LastError:       "no call result received before timeout",
	})
	if err != nil {
		return err
	}

	o.releaseSlot(ctx)
	o.monitor.EndCall(providerCallID, "timeout")
	return nil
}

// Hangup terminates a call in flight without closing its attempt; the
// vendor's own completion webhook (or the timeout path) settles it.
func (o *Orchestrator) Hangup(ctx context.Context, providerCallID string) error {
	attempt, ok, err := o.store.FindOpenAttempt(ctx, providerCallID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	o.hangupAttempt(ctx, attempt)
	return nil
}

// vendorSummary fills the job summary when the vendor reported the outcome
// itself and no transcript classification ran.
func vendorSummary(outcome verify.Outcome) string {
	switch outcome {
	case verify.OutcomeAccountFound:
		return "Vendor reported the account was confirmed."
	case verify.OutcomeAccountNotFound:
		return "Vendor reported no account was found."
	case verify.OutcomeVoicemail:
		return "Call reached voicemail."
	case verify.OutcomeNeedsHuman:
		return "Vendor flagged the call for operator review."
	case verify.OutcomeFailed:
		return "Call did not complete."
	}
	return ""
}

// nextStatus decides where the job rests after a final outcome. Definitive
// outcomes are terminal; everything else returns to pending while retry
// budget remains, or rests at the outcome's status once exhausted.
func (o *Orchestrator) nextStatus(ctx context.Context, job verify.Job, outcome verify.Outcome) verify.Status {
	status := outcome.Status()
	if status.Terminal() {
		return status
	}
	policy := o.runtime.RetryPolicy(ctx)
	if job.AttemptCount < policy.MaxAttempts {
		return verify.StatusPending
	}
	return status
}

func (o *Orchestrator) hangupAttempt(ctx context.Context, attempt verify.Attempt) {
	provider, err := o.providers.ByName(ctx, attempt.Provider)
	if err != nil {
		o.log.Warn("no adapter for hangup", "provider", attempt.Provider, "err", err)
		return
	}
	if err := provider.Hangup(ctx, attempt.ProviderCallID); err != nil {
		o.log.Warn("hangup failed", "call_id", attempt.ProviderCallID, "err", err)
		return
	}
	o.monitor.AddEvent(attempt.ProviderCallID, "hangup_requested", "Call termination requested")
}

// checkBalance enforces the funding guard for live calls. Balance lookup
// errors only warn; trial accounts routinely fail this query. The returned
// flag reports a low-but-positive balance.
func (o *Orchestrator) checkBalance(ctx context.Context, provider telephony.Provider, simulated bool) (bool, error) {
	if simulated {
		return false, nil
	}
	bal, err := provider.Balance(ctx)
	if err != nil {
		o.log.Warn("balance check failed, proceeding", "provider", provider.Name(), "err", err)
		return false, nil
	}
	if bal.Note != "" && bal.Amount == 0 {
		o.log.Warn("balance not numeric, proceeding", "provider", provider.Name(), "note", bal.Note)
		return false, nil
	}
	if bal.Amount <= 0 {
		return false, fmt.Errorf("%w: %s reports %.2f %s", ErrInsufficientFunds, provider.Name(), bal.Amount, bal.Currency)
	}
	if threshold := o.runtime.LowBalanceThreshold(ctx); bal.Amount < threshold {
		o.log.Warn("provider balance low",
			"provider", provider.Name(),
			"balance", bal.Amount,
			"threshold", threshold,
		)
		return true, nil
	}
	return false, nil
}

// callbackURLs resolves the status and answer callback URLs for a call.
// Precedence for the base: per-call override > provider-specific setting >
// global setting. Live calls require a public base.
func (o *Orchestrator) callbackURLs(ctx context.Context, provider, override string, simulated bool) (statusURL, answerURL string, err error) {
	base := strings.TrimRight(strings.TrimSpace(override), "/")
	if base == "" {
		base = o.runtime.ProviderWebhookBase(ctx, provider)
	}
	if base == "" {
		base = o.runtime.GlobalWebhookBase(ctx)
	}

	if !simulated {
		if base == "" {
			return "", "", ErrWebhookBaseRequired
		}
		u, perr := url.Parse(base)
		if perr != nil || u.Host == "" {
			return "", "", fmt.Errorf("%w: invalid base %q", ErrWebhookBaseRequired, base)
		}
		host := strings.ToLower(u.Hostname())
		if host == "localhost" || host == "127.0.0.1" || strings.Contains(host, "ngrok") {
			return "", "", fmt.Errorf("%w: %q is not reachable by the vendor", ErrWebhookBaseRequired, base)
		}
	}
	if base == "" {
		// Simulated calls without a base skip webhook delivery entirely.
		return "", "", nil
	}

	switch provider {
	case "twilio":
		return base + "/webhooks/twilio/status", base + "/webhooks/twilio/answer", nil
	default:
		return base + "/webhooks/" + provider, "", nil
	}
}

func (o *Orchestrator) acquireSlot(ctx context.Context) (release func(), err error) {
	if o.rdb == nil {
		return func() {}, nil
	}
	limit := o.runtime.MaxConcurrentCalls(ctx)
	ttl := o.runtime.CallTimeout() + time.Minute
	ok, err := utils.AcquireCallSlot(ctx, o.rdb, callSlotKey, limit, ttl)
	if err != nil {
		o.log.Warn("call slot acquire failed, proceeding without cap", "err", err)
		return func() {}, nil
	}
	if !ok {
		return nil, ErrConcurrencyLimit
	}
	return func() { o.releaseSlot(ctx) }, nil
}

func (o *Orchestrator) releaseSlot(ctx context.Context) {
	if o.rdb == nil {
		return
	}
	if err := utils.ReleaseCallSlot(ctx, o.rdb, callSlotKey); err != nil {
		o.log.Warn("call slot release failed", "err", err)
	}
}
