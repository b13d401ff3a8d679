package main

import (
	"context"
	"net/http"
	"time"

	"audit-portal/internal/httpapi"
	"audit-portal/internal/rbac"

	"github.com/gin-gonic/gin"
)

// healthFunc reports whether a dependency is reachable.
type healthFunc func(ctx context.Context) error

type routeOptions struct {
	// EnableLogin exposes the local token issuance endpoint.
	EnableLogin bool
	Ready       map[string]healthFunc
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, opts routeOptions) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", readiness(opts.Ready))

	// Payment gateway notifications (public). Payments are re-fetched from the
	// gateway before crediting, so the body itself is never trusted.
	r.POST("/webhooks/payments/mercadopago", h.MercadoPagoWebhook)

	if opts.EnableLogin {
		r.POST("/v1/auth/login", h.Login)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", h.Me)
		v1.GET("/categories", h.ListCategories)
		v1.GET("/files/*path", h.ServeFile)

		// LEDGER routes
		collab := v1.Group("")
		collab.Use(rbac.RequireCollaborator())
		{
			collab.GET("/balance", h.GetBalance)
			collab.GET("/balance/entries", h.ListEntries)
			collab.POST("/checkout", h.StartCheckout)
		}

		// CONSULTATION routes
		cons := v1.Group("/consultations")
		{
			cons.GET("", h.ListConsultations)
			cons.POST("", rbac.RequireCollaborator(), h.CreateConsultation)
			cons.GET("/:id", h.GetConsultation)
			cons.GET("/:id/live", h.Live)

			cons.POST("/:id/quote", rbac.RequireStaff(), h.QuoteConsultation)
			cons.POST("/:id/start", rbac.RequireStaff(), h.StartConsultation())
			cons.POST("/:id/complete", rbac.RequireStaff(), h.CompleteConsultation())
			cons.POST("/:id/feedback", rbac.RequireStaff(), h.SetFeedback)

			cons.POST("/:id/accept", rbac.RequireCollaborator(), h.AcceptConsultation())
			cons.POST("/:id/reject", rbac.RequireCollaborator(), h.RejectConsultation())
			// admin passes every role gate
			cons.POST("/:id/cancel", rbac.RequireCollaborator(), h.CancelConsultation())

			cons.POST("/:id/meeting", h.ScheduleMeeting)
			cons.POST("/:id/meeting/widget-callback", h.MeetingWidgetCallback)
			cons.POST("/:id/meeting/complete", h.CompleteMeeting())
			cons.POST("/:id/meeting/cancel", h.CancelMeeting())

			cons.GET("/:id/messages", h.ListMessages)
			cons.POST("/:id/messages", h.PostMessage)
		}

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAdmin())
		{
			admin.POST("/balances/:collaborator_id/credit", h.AdminCredit)
			admin.GET("/reports/hours", h.HoursReport)
			admin.GET("/reports/consultations", h.ConsultationsReport)
		}
	}
}

func readiness(checks map[string]healthFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		out := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				out[name] = "unavailable"
				continue
			}
			out[name] = "ok"
		}
		c.JSON(status, gin.H{"checks": out})
	}
}
