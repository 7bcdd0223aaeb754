package main

import (
	"account-verifier/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Vendor webhooks (public).
	// NOTE: These should be protected by vendor signature validation in production.
	r.POST("/webhooks/twilio/status", h.TwilioStatus)
	r.POST("/webhooks/twilio/answer", h.TwilioAnswer)
	r.POST("/webhooks/telnyx", h.TelnyxStatus)
	r.POST("/webhooks/plivo", h.PlivoStatus)

	// Token exchange is public; it is itself the authentication step.
	r.POST("/v1/auth/token", h.IssueToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		q := v1.Group("/queue")
		{
			q.POST("/start", h.StartQueue)
			q.POST("/stop", h.StopQueue)
			q.GET("/status", h.QueueStatus)
		}

		jobs := v1.Group("/jobs")
		{
			jobs.GET("/:job_id", h.GetJob)
			jobs.GET("/:job_id/history", h.JobHistory)
			jobs.POST("/:job_id/call", h.CallJob)
		}

		calls := v1.Group("/calls")
		{
			calls.GET("/active", h.ActiveCalls)
			calls.GET("/:call_id", h.GetCall)
			calls.GET("/:call_id/events", h.StreamCallEvents)
		}

		v1.GET("/provider/balance", h.ProviderBalance)

		cfgGroup := v1.Group("/settings")
		{
			cfgGroup.GET("", h.ListSettings)
			cfgGroup.PUT("/:key", h.SetSetting)
			cfgGroup.DELETE("/:key", h.DeleteSetting)
		}
	}
}
