// Package httpapi exposes the admin and webhook HTTP surface.
// Keep handlers thin: parse/validate input, call internal services, return JSON.
package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"account-verifier/internal/auth"
	"account-verifier/internal/monitor"
	"account-verifier/internal/orchestrator"
	"account-verifier/internal/queue"
	"account-verifier/internal/settings"
	"account-verifier/internal/verify"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
type Handlers struct {
	Auth       *auth.Manager
	Store      verify.Store
	Orch       *orchestrator.Orchestrator
	Supervisor *queue.Supervisor
	Monitor    *monitor.Monitor
	Providers  orchestrator.Providers
	Settings   settings.Store
	Log        *slog.Logger
}

// --- Auth ---

type tokenRequest struct {
	APIKey   string `json:"api_key"`
	Operator string `json:"operator"`
}

// IssueToken exchanges the admin API key for a bearer token.
func (h Handlers) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.APIKey == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "api_key required"})
		return
	}

	token, expiresAt, err := h.Auth.Exchange(time.Now(), req.APIKey, req.Operator)
	if err != nil {
		if errors.Is(err, auth.ErrBadAPIKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "expires_at": expiresAt})
}

// --- Queue ---

type startQueueRequest struct {
	MaxJobs int `json:"max_jobs"`
}

func (h Handlers) StartQueue(c *gin.Context) {
	var req startQueueRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	if req.MaxJobs < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "max_jobs must be >= 0"})
		return
	}

	if err := h.Supervisor.Start(req.MaxJobs); err != nil {
		if errors.Is(err, queue.ErrAlreadyRunning) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "queue processor already running"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, h.Supervisor.Status())
}

func (h Handlers) StopQueue(c *gin.Context) {
	err := h.Supervisor.Stop(c.Request.Context())
	if err != nil {
		if errors.Is(err, queue.ErrNotRunning) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "queue processor not running"})
			return
		}
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.Supervisor.Status())
}

func (h Handlers) QueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Supervisor.Status())
}

// --- Jobs ---

func (h Handlers) GetJob(c *gin.Context) {
	job, err := h.Store.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		h.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h Handlers) JobHistory(c *gin.Context) {
	jobID := c.Param("job_id")
	job, err := h.Store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.jobError(c, err)
		return
	}
	attempts, err := h.Store.AttemptsForJob(c.Request.Context(), jobID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}

	out := gin.H{"job_id": jobID, "attempts": attempts}
	if job.ProviderCallID != "" {
		if view, ok := h.Monitor.Snapshot(job.ProviderCallID); ok {
			out["live_call"] = view
		}
	}
	c.JSON(http.StatusOK, out)
}

type callJobRequest struct {
	WebhookBase string `json:"webhook_base"`
}

// CallJob places a call for a single job outside the queue processor.
func (h Handlers) CallJob(c *gin.Context) {
	var req callJobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	job, err := h.Orch.Initiate(c.Request.Context(), c.Param("job_id"), req.WebhookBase)
	if err != nil {
		h.jobError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h Handlers) jobError(c *gin.Context, err error) {
	var notDue *orchestrator.RetryNotDueError
	switch {
	case errors.Is(err, verify.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.As(err, &notDue):
		c.AbortWithStatusJSON(http.StatusTooEarly, gin.H{
			"error":        "retry not due",
			"wait_seconds": int(notDue.Wait.Seconds()),
		})
	case errors.Is(err, orchestrator.ErrJobTerminal),
		errors.Is(err, orchestrator.ErrRetryExhausted),
		errors.Is(err, verify.ErrInvalidState):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrInsufficientFunds):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrWebhookBaseRequired):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrConcurrencyLimit):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		h.Log.Error("job request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Calls ---

func (h Handlers) ActiveCalls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": h.Monitor.ActiveCalls()})
}

func (h Handlers) GetCall(c *gin.Context) {
	view, ok := h.Monitor.Snapshot(c.Param("call_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not tracked"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// StreamCallEvents serves the live event feed for one call over SSE.
func (h Handlers) StreamCallEvents(c *gin.Context) {
	callID := c.Param("call_id")

	events, cancel, ok := h.Monitor.Subscribe(callID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not active"})
		return
	}
	defer cancel()

	// Replay the trail so far before streaming live events.
	if view, ok := h.Monitor.Snapshot(callID); ok {
		for _, ev := range view.Events {
			c.SSEvent("call_event", ev)
		}
		c.Writer.Flush()
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("call_event", ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// --- Provider ---

func (h Handlers) ProviderBalance(c *gin.Context) {
	provider, err := h.Providers.Active(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bal, err := provider.Balance(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "balance query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider": provider.Name(),
		"balance":  bal.Amount,
		"currency": bal.Currency,
		"note":     bal.Note,
	})
}

// --- Settings ---

func (h Handlers) ListSettings(c *gin.Context) {
	all, err := h.Settings.All(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settings lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": all})
}

type setSettingRequest struct {
	Value string `json:"value"`
}

func (h Handlers) SetSetting(c *gin.Context) {
	var req setSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	key := c.Param("key")
	if err := h.Settings.Set(c.Request.Context(), key, req.Value); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settings update failed"})
		return
	}
	operator, _ := auth.Operator(c.Request.Context())
	h.Log.Info("setting updated", "key", key, "operator", operator)
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}

func (h Handlers) DeleteSetting(c *gin.Context) {
	key := c.Param("key")
	if err := h.Settings.Delete(c.Request.Context(), key); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settings update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "deleted": true})
}
